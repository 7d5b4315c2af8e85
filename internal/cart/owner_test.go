package cart

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/partsdepot/cart-service/pkg/enums"
	pkgerrors "github.com/partsdepot/cart-service/pkg/errors"
)

func TestOwnerValidate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	cases := []struct {
		name    string
		owner   Owner
		wantErr bool
	}{
		{name: "session", owner: SessionOwner("sess-1")},
		{name: "user", owner: UserOwner(userID)},
		{name: "empty", owner: Owner{}, wantErr: true},
		{name: "blank session", owner: SessionOwner("   "), wantErr: true},
		{name: "both", owner: Owner{UserID: userID, SessionID: "sess-1"}, wantErr: true},
		{name: "session too long", owner: SessionOwner(strings.Repeat("s", maxSessionIDLength+1)), wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.owner.Validate()
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestOwnerKindAndIndex(t *testing.T) {
	t.Parallel()

	guest := SessionOwner("sess-1")
	if guest.Kind() != enums.CartOwnerGuest || guest.activeIndex() != "ux_carts_active_session" {
		t.Fatalf("unexpected guest owner mapping: %s %s", guest.Kind(), guest.activeIndex())
	}
	if guest.userIDPtr() != nil || guest.sessionIDPtr() == nil || *guest.sessionIDPtr() != "sess-1" {
		t.Fatalf("unexpected guest owner pointers")
	}

	userID := uuid.New()
	user := UserOwner(userID)
	if user.Kind() != enums.CartOwnerUser || user.activeIndex() != "ux_carts_active_user" {
		t.Fatalf("unexpected user owner mapping: %s %s", user.Kind(), user.activeIndex())
	}
	if user.sessionIDPtr() != nil || *user.userIDPtr() != userID {
		t.Fatalf("unexpected user owner pointers")
	}
	if user.String() != "user:"+userID.String() {
		t.Fatalf("unexpected owner string %q", user.String())
	}
}
