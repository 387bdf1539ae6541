package events

// Topic constants for domain events emitted by the pricing service.
const (
	TopicCartCheckedOut    = "cart.checked_out"
	TopicCartRuleExhausted = "cart_rule.exhausted"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{TopicCartCheckedOut, TopicCartRuleExhausted}
}
