package waitlist

import (
	"fmt"
	"strings"

	"github.com/example/courtboard/internal/court"
)

// Field error messages returned by ValidateGroup.
const (
	MsgGroupRequired  = "at least one player is required"
	MsgGroupTooLarge  = "group exceeds the maximum size"
	MsgNameRequired   = "name is required"
	MsgDuplicateInGrp = "player appears more than once in the group"
	MsgGuestsNegative = "guests must not be negative"
)

// ValidateGroup checks a requesting group and returns field errors keyed by
// field path. A nil map means the group is valid.
func ValidateGroup(players []court.Participant, guests, maxSize int) map[string]string {
	errs := make(map[string]string)
	if len(players) == 0 {
		errs["players"] = MsgGroupRequired
	}
	if maxSize > 0 && len(players) > maxSize {
		errs["players"] = MsgGroupTooLarge
	}
	if guests < 0 {
		errs["guests"] = MsgGuestsNegative
	}

	for i, p := range players {
		field := fmt.Sprintf("players[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			errs[field] = MsgNameRequired
			continue
		}
		for j := 0; j < i; j++ {
			if p.SameAs(players[j]) {
				errs[field] = MsgDuplicateInGrp
				break
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
