package domain

// User-visible reply texts. Kept in one place so every path that degrades
// to a canned answer says the same thing.
const (
	ReplySignup          = "To use the service, please sign up for an account at https://braintext.io"
	ReplyVerifyPhone     = "Please verify your number to access the service. https://braintext.io/profile"
	ReplyVerifyEmail     = "Please verify your email to access the service. https://braintext.io/profile"
	ReplyExpired         = "It seems your subscription has expired. Please renew your subscription to continue to enjoy your services. \nhttps://braintext.io/profile"
	ReplyNoAccess        = "You don't have access to this service. Please upgrade your account to decrease limits. \nhttps://braintext.io/profile"
	ReplySettingsProblem = "There's a problem, I can't respond at this time.\nCheck the settings in your profile. https://braintext.io/profile"
	ReplyTakingLong      = "Sorry, your response is taking longer than usual. Please hold on."
	ReplyApology         = "Sorry, I cannot respond to that at the moment, please try again later."
	ReplyTranscribeFail  = "Error transcribing audio. Please try again later."
	ReplyMediaFail       = "Something went wrong. Please try again later."
	ReplyTooLong         = "Your response is too long. Please rephrase your question."
)
