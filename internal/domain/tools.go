package domain

import "context"

// ArchiveRequest is everything an Archiver needs to produce one archive.
// Exclusions are wildcard patterns. Masked names are root-relative paths
// excluded literally, so metacharacters in them are never interpreted.
type ArchiveRequest struct {
	Root       string
	Sources    []string
	Exclusions []string
	Masked     []string
	Dest       string
}

// Archiver creates a compressed archive. OnEntry is invoked once per member
// written, in the order the tool reports them.
type Archiver interface {
	Create(ctx context.Context, req ArchiveRequest, onEntry func(name string)) error
	Extract(ctx context.Context, archivePath, targetDir string, members []string) error
}

// Passphrase yields the secret for the cipher. Exactly one of File or Secret
// is set: File when the passphrase lives on disk, Secret when it was typed.
type Passphrase struct {
	File   string
	Secret []byte
}

func (p *Passphrase) Wipe() {
	if p == nil {
		return
	}
	for i := range p.Secret {
		p.Secret[i] = 0
	}
	p.Secret = nil
}

type Cipher interface {
	EncryptSymmetric(ctx context.Context, src, dest string, pass Passphrase) error
	Decrypt(ctx context.Context, src, dest string, pass Passphrase) error
}

// Shredder removes a file, overwriting it first when possible. It reports
// whether the secure path was taken.
type Shredder interface {
	Remove(ctx context.Context, path string) (secure bool, err error)
}
