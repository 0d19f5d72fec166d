package bot

// Replies sent by the command router.
const (
	WelcomeText = "Hi! I will help you keep track of your mood.\n\n" +
		"Here is what I can do:\n" +
		"/settings - choose when I should ask you questions.\n" +
		"/ask - start a check-in right now.\n\n" +
		"Give it a try!"

	SettingsHelpText = "Send your settings as: timezone, start hour, end hour, interval (hours).\n" +
		"Example: Asia/Yekaterinburg, 8, 22, 3\n\n" +
		"Timezone names: https://en.wikipedia.org/wiki/List_of_tz_database_time_zones"

	SettingsSavedText  = "Settings saved! I will ask you questions on your schedule."
	SettingsErrorText  = "Error in input format: %v"
	AlreadyRunningText = "A check-in is already in progress. Answer the last question to continue."
	UnknownText        = "I did not understand that. Send /ask to start a check-in or /settings to change your schedule."
)
