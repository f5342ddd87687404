package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/keepsake/internal/domain"
)

const clientSecret = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"s","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://127.0.0.1:8085/auth/google/callback"]}}`

func TestDriveAuth(t *testing.T) {
	Convey("Given a client secret file", t, func() {
		dir, err := os.MkdirTemp("", "drive_auth")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		secret := filepath.Join(dir, "client_secret.json")
		So(os.WriteFile(secret, []byte(clientSecret), 0600), ShouldBeNil)

		auth, err := NewDriveAuth(domain.NopLogger(), secret, filepath.Join(dir, "token.json"))
		So(err, ShouldBeNil)
		handler := auth.handler()

		Convey("The start page redirects to Google with offline access and state", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/drive", nil))

			So(rec.Code, ShouldEqual, http.StatusTemporaryRedirect)
			location := rec.Header().Get("Location")
			So(strings.HasPrefix(location, "https://accounts.google.com/"), ShouldBeTrue)
			So(location, ShouldContainSubstring, "access_type=offline")
			So(location, ShouldContainSubstring, "state="+auth.state)
		})

		Convey("A callback with a forged state is rejected", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=nope&code=x", nil))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A callback without a code is rejected", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?state="+auth.state, nil))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Missing paths are a configuration error", t, func() {
		_, err := NewDriveAuth(domain.NopLogger(), "", "")
		So(domain.KindOf(err), ShouldEqual, domain.KindConfig)
	})
}
