package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/oauth2"
)

func TestGDriveTokens(t *testing.T) {
	Convey("Given a token from the OAuth helper", t, func() {
		dir, err := os.MkdirTemp("", "gdrive_token")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "token.json")
		token := &oauth2.Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			Expiry:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		Convey("SaveToken writes it owner-only and LoadToken reads it back", func() {
			So(SaveToken(path, token), ShouldBeNil)
			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0600))

			loaded, err := LoadToken(path)
			So(err, ShouldBeNil)
			So(loaded.RefreshToken, ShouldEqual, "refresh")
		})

		Convey("A token without a refresh token is refused", func() {
			token.RefreshToken = ""
			So(SaveToken(path, token), ShouldBeNil)
			_, err := LoadToken(path)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Query values are escaped", t, func() {
		So(quoteQuery(`it's\here`), ShouldEqual, `it\'s\\here`)
		g := &GDriveStorage{}
		So(g.parentClause(), ShouldEqual, "'root' in parents")
		g.folderID = "abc"
		So(g.parentClause(), ShouldEqual, "'abc' in parents")
	})
}
