package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Terminal states never transition anywhere
func TestWithdrawalStatusTerminalProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	statuses := gen.OneConstOf(WithdrawalPending, WithdrawalCompleted, WithdrawalRejected)

	properties.Property("terminal statuses have no outgoing transitions", prop.ForAll(
		func(from, to WithdrawalStatus) bool {
			if from.Terminal() {
				return !from.CanTransition(to)
			}
			return from.CanTransition(to) == to.Terminal()
		},
		statuses,
		statuses,
	))

	properties.TestingRun(t)
}
