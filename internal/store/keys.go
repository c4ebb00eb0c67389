package store

// Global keys. Everything else is namespaced by the device id.
const (
	KeyDeviceID            = "deviceId"
	KeyTheme               = "theme"
	KeyRememberedUser      = "user"
	KeyOnboardingCompleted = "onboardingCompleted"
	KeyHasSeenWelcome      = "hasSeenWelcome"

	sentinelTrue = "true"
)

func ProfileKey(deviceID string) string          { return "userData_" + deviceID }
func TransactionsKey(deviceID string) string     { return "transactions_" + deviceID }
func SavingsGoalsKey(deviceID string) string     { return "savingsGoals_" + deviceID }
func BudgetCategoriesKey(deviceID string) string { return "budgetCategories_" + deviceID }
func CurrencyKey(deviceID string) string         { return "currency_" + deviceID }

// Assistant configuration keys, one per field.
func AIAPIKeyKey(deviceID string) string   { return "ai_api_key_" + deviceID }
func AIEndpointKey(deviceID string) string { return "ai_endpoint_" + deviceID }
func AIModelKey(deviceID string) string    { return "ai_model_" + deviceID }
func AILanguageKey(deviceID string) string { return "ai_language_" + deviceID }

// DeviceKeys lists every key scoped to deviceID.
func DeviceKeys(deviceID string) []string {
	return []string{
		ProfileKey(deviceID),
		TransactionsKey(deviceID),
		SavingsGoalsKey(deviceID),
		BudgetCategoriesKey(deviceID),
		CurrencyKey(deviceID),
		AIAPIKeyKey(deviceID),
		AIEndpointKey(deviceID),
		AIModelKey(deviceID),
		AILanguageKey(deviceID),
	}
}
