package extratool

import (
	"fmt"

	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/integrations"
	"github.com/telebiz/agentcore/internal/tool"
)

// EntityNotFoundError is returned by linkEntityToChat when the CRM has no
// such entity. The caller must not respond by creating one.
type EntityNotFoundError struct {
	IntegrationID int64
	EntityType    integrations.EntityType
	EntityID      string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found in integration %d. Nothing was linked or created; ask the user how to proceed.",
		e.EntityType, e.EntityID, e.IntegrationID)
}

func (e *EntityNotFoundError) Unwrap() error { return integrations.ErrNotFound }

func notConfigured(what string) domain.ToolResult {
	return domain.Failf(domain.ErrorKindBusiness, "%s integration is not configured", what)
}

// remoteFailure turns a collaborator error into a failed result.
func remoteFailure(err error) domain.ToolResult {
	if integrations.IsNotFound(err) {
		return domain.Fail(domain.ErrorKindNotFound, err.Error())
	}
	return domain.Fail(domain.ErrorKindRemote, err.Error())
}

// numberArg reads a required numeric id.
func numberArg(args tool.Args, key string) (int64, error) {
	n := args.Int(key, -1)
	if n < 0 {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}

// chatIDArg is the ChatAffecter body shared by tools keyed on chatId.
type chatIDArg struct{}

func (chatIDArg) AffectedChats(args tool.Args) []string {
	if id := args.String("chatId"); id != "" {
		return []string{id}
	}
	return nil
}

// optional copies present, non-blank string args into fields.
func optional(args tool.Args, fields map[string]any, keys ...string) {
	for _, k := range keys {
		if v := args.String(k); v != "" {
			fields[k] = v
		}
	}
}
