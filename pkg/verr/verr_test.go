package verr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := New(CodeUpstreamRejected, errors.New("status 503"))
	wrapped := fmt.Errorf("submit: %w", base)

	if got := CodeOf(wrapped); got != CodeUpstreamRejected {
		t.Fatalf("CodeOf = %s, want %s", got, CodeUpstreamRejected)
	}
	if !IsCode(wrapped, CodeUpstreamRejected) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if IsCode(nil, CodeUpstreamRejected) {
		t.Error("IsCode(nil) must be false")
	}
}

func TestNewNil(t *testing.T) {
	if err := New(CodePersistence, nil); err != nil {
		t.Fatalf("New with nil cause = %v, want nil", err)
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := New(CodeConfiguration, errors.New("open /etc/vakil/secret.key: permission denied"))

	msg := PublicMessage(err)
	if strings.Contains(msg, "/etc/vakil") {
		t.Fatalf("public message leaks path: %q", msg)
	}
	if msg != defaultPublic[CodeConfiguration] {
		t.Errorf("PublicMessage = %q", msg)
	}
}

func TestPublicMessageOverride(t *testing.T) {
	err := WithPublic(CodeInvalidRequest, "Message cannot be empty.", nil)
	if got := PublicMessage(err); got != "Message cannot be empty." {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(errors.New("boom")); got != defaultPublic[CodeUnknown] {
		t.Errorf("PublicMessage for plain error = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeCSRFMismatch:        http.StatusForbidden,
		CodeNotFoundOrForbidden: http.StatusNotFound,
		CodeDuplicateIdentity:   http.StatusConflict,
		CodeUpstreamRejected:    http.StatusBadGateway,
		CodePersistence:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(New(code, errors.New("x"))); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
