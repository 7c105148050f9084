package stage

var (
	PurchasePhrases     = purchasePhrases
	SubscriptionPhrases = subscriptionPhrases
)
