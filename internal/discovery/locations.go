package discovery

import "github.com/semmidev/keepsake/internal/domain"

// Location is one entry of the known-location table. Path is relative to
// the home directory.
type Location struct {
	Name        string
	Description string
	Category    domain.Category
	Path        string
}

// knownLocations is scanned in order.
var knownLocations = []Location{
	// Editors
	{"nvim", "Neovim configuration", domain.CategoryConfigs, ".config/nvim"},
	{"vim", "Vim configuration", domain.CategoryDotfiles, ".vimrc"},
	{"vim-dir", "Vim runtime directory", domain.CategoryConfigs, ".vim"},
	{"helix", "Helix editor configuration", domain.CategoryConfigs, ".config/helix"},
	{"emacs", "Emacs configuration", domain.CategoryConfigs, ".emacs.d"},
	{"vscode", "VS Code user settings", domain.CategoryDevelopment, ".config/Code/User"},
	{"zed", "Zed editor configuration", domain.CategoryConfigs, ".config/zed"},

	// Terminals and shells
	{"kitty", "Kitty terminal configuration", domain.CategoryConfigs, ".config/kitty"},
	{"alacritty", "Alacritty terminal configuration", domain.CategoryConfigs, ".config/alacritty"},
	{"wezterm", "WezTerm terminal configuration", domain.CategoryConfigs, ".config/wezterm"},
	{"ghostty", "Ghostty terminal configuration", domain.CategoryConfigs, ".config/ghostty"},
	{"foot", "Foot terminal configuration", domain.CategoryConfigs, ".config/foot"},
	{"tmux", "tmux configuration", domain.CategoryDotfiles, ".tmux.conf"},
	{"starship", "Starship prompt configuration", domain.CategoryConfigs, ".config/starship.toml"},
	{"fish", "Fish shell configuration", domain.CategoryConfigs, ".config/fish"},

	// Window-manager ecosystem
	{"hyprland", "Hyprland compositor configuration", domain.CategoryConfigs, ".config/hypr"},
	{"sway", "Sway window manager configuration", domain.CategoryConfigs, ".config/sway"},
	{"i3", "i3 window manager configuration", domain.CategoryConfigs, ".config/i3"},
	{"waybar", "Waybar status bar configuration", domain.CategoryConfigs, ".config/waybar"},
	{"rofi", "Rofi launcher configuration", domain.CategoryConfigs, ".config/rofi"},
	{"wofi", "Wofi launcher configuration", domain.CategoryConfigs, ".config/wofi"},
	{"mako", "Mako notification daemon configuration", domain.CategoryConfigs, ".config/mako"},
	{"dunst", "Dunst notification daemon configuration", domain.CategoryConfigs, ".config/dunst"},
	{"gtk3", "GTK 3 settings", domain.CategoryApplications, ".config/gtk-3.0"},
	{"fontconfig", "Font configuration", domain.CategorySystem, ".config/fontconfig"},
	{"systemd-user", "systemd user units", domain.CategorySystem, ".config/systemd/user"},
	{"environment", "Session environment variables", domain.CategorySystem, ".config/environment.d"},

	// Credentials
	{"ssh", "SSH keys and client configuration", domain.CategoryCredentials, ".ssh"},
	{"gnupg", "GnuPG keyring", domain.CategoryCredentials, ".gnupg"},
	{"aws", "AWS CLI credentials", domain.CategoryCredentials, ".aws"},
	{"kube", "Kubernetes client configuration", domain.CategoryCredentials, ".kube"},
	{"docker", "Docker client configuration", domain.CategoryCredentials, ".docker/config.json"},
	{"gh", "GitHub CLI configuration", domain.CategoryCredentials, ".config/gh"},
	{"git-credentials", "Git credential store", domain.CategoryCredentials, ".git-credentials"},
	{"password-store", "pass password store", domain.CategoryCredentials, ".password-store"},

	// Development
	{"cargo", "Cargo configuration", domain.CategoryDevelopment, ".cargo/config.toml"},
	{"npmrc", "npm configuration", domain.CategoryDevelopment, ".npmrc"},
	{"gitignore-global", "Global gitignore", domain.CategoryDevelopment, ".config/git"},

	// Applications and documents
	{"mpv", "mpv player configuration", domain.CategoryApplications, ".config/mpv"},
	{"zathura", "Zathura viewer configuration", domain.CategoryApplications, ".config/zathura"},
	{"templates", "Document templates", domain.CategoryDocuments, "Templates"},

	// Traditional dotfiles
	{"bashrc", "Bash interactive configuration", domain.CategoryDotfiles, ".bashrc"},
	{"bash-profile", "Bash login configuration", domain.CategoryDotfiles, ".bash_profile"},
	{"zshrc", "Zsh configuration", domain.CategoryDotfiles, ".zshrc"},
	{"profile", "Login shell profile", domain.CategoryDotfiles, ".profile"},
	{"gitconfig", "Git user configuration", domain.CategoryDotfiles, ".gitconfig"},
	{"inputrc", "Readline configuration", domain.CategoryDotfiles, ".inputrc"},
	{"xinitrc", "X session startup", domain.CategoryDotfiles, ".xinitrc"},
	{"xresources", "X resources", domain.CategoryDotfiles, ".Xresources"},
}

// KnownLocations returns a copy of the location table.
func KnownLocations() []Location {
	out := make([]Location, len(knownLocations))
	copy(out, knownLocations)
	return out
}
