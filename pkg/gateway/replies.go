package gateway

const (
	replyNotUnderstood = "I did not understand that command, please use '!help' to list the commands and how to use them"
	replyUnresolved    = "Sorry I did not recognize the username (or two or more users were possible candidates).\n" +
		"Please write out the user in full, like @username:example-server.com."
	replyProblem   = "I seem to be experiencing a problem please try again later"
	replyBotIntro  = "Thanks for your message. I am but a simple bot. I will join any room you invite me to. Please run !help to see what I can do."
	welcomePreface = "Thanks for inviting me. I support the following commands:\n"
)

// WelcomeText is posted after the bot joins a room.
func WelcomeText(help string) string {
	return welcomePreface + help
}
