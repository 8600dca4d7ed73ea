package main

import "github.com/echolock/echolock/internal/common"

// exitCodeFor maps an error's Kind to the CLI exit code table from
// SPEC_FULL.md's concretization of spec.md §6/§7.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := common.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case common.KindAeadAuthFailure:
		return 10
	case common.KindIntegrityFailure:
		return 11
	case common.KindSignatureFailure:
		return 12
	case common.KindInsufficientShares, common.KindInconsistentShares:
		return 13
	case common.KindParameterError:
		return 14
	case common.KindRelayUnreachable, common.KindRelayRejected:
		return 20
	case common.KindQuorumNotMet:
		return 21
	case common.KindTimelockNotValid, common.KindNoUtxos, common.KindInsufficientValue:
		return 30
	case common.KindInvalidStateTransition:
		return 31
	case common.KindIo, common.KindRngFailure:
		return 40
	default:
		return 1
	}
}
