package rules

// Audit action types. These strings are read back by the dashboard and by
// anyone querying mod_actions directly.
const (
	RulePrefix          = "RULE_"
	RateLimitActionType = "REMOVE_LIMIT"
	BanActionType       = "BAN_USER"
	DryRunPrefix        = "TEST_"
)

// WithDryRun prefixes actionType with TEST_ when dryRun is set.
func WithDryRun(actionType string, dryRun bool) string {
	if dryRun {
		return DryRunPrefix + actionType
	}
	return actionType
}
