package wl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type TestCommand struct{}

type TestNamedCommand struct{}

func (TestNamedCommand) TypeName() string {
	return "test:named"
}

func resolvesExplicitName(t *testing.T) {
	assert.Equal(t, CommandName("test:named"), CommandNameOf(TestNamedCommand{}))
}

func resolvesImplicitName(t *testing.T) {
	assert.Equal(t, CommandName("wl:test-command"), CommandNameOf(TestCommand{}))
}

func resolvesRemoteName(t *testing.T) {
	remote := RemoteCommand{CommandName: "account:open-account"}
	assert.Equal(t, CommandName("account:open-account"), CommandNameOf(remote))
}

func TestCommands(t *testing.T) {
	t.Run("resolves explicit name", resolvesExplicitName)
	t.Run("resolves implicit name", resolvesImplicitName)
	t.Run("resolves remote name", resolvesRemoteName)
}

func TestEventTypeOf(t *testing.T) {
	type AmountDeposited struct{}
	assert.Equal(t, EventType("wl:amount-deposited"), EventTypeOf(AmountDeposited{}))
	assert.Equal(t, EventType("wl:amount-deposited"), EventTypeOf(&AmountDeposited{}))
}
