package report

import (
	"fmt"
	"strings"
)

// Reporter-facing replies.
const (
	msgStart = "Thank you for starting the reporting process. " +
		"Say `help` at any time for more information.\n\n" +
		"Please copy paste the link to the message you want to report.\n" +
		"You can obtain this link by right-clicking the message and clicking `Copy Message Link`."

	msgBadLink        = "I'm sorry, I couldn't read that link. Please try again or say `cancel` to cancel."
	msgUnknownGuild   = "I cannot accept reports of messages from guilds that I'm not in. Please have the guild owner add me to the guild and try again."
	msgUnknownChannel = "It seems this channel was deleted or never existed. Please try again or say `cancel` to cancel."
	msgUnknownMessage = "It seems this message was deleted or never existed. Please try again or say `cancel` to cancel."

	msgInvalidReason  = "Invalid input. Please enter the number corresponding to the report reason."
	msgInvalidSubtype = "Invalid input. Please enter the number corresponding to the specific reason."
	msgMinorQuestion  = "Are you a minor? Reply `yes` or `no`."
	msgInvalidConfirm = "Invalid input. Please reply `confirm` or `cancel`."
	msgInvalidYesNo   = "Invalid input. Please reply `yes` or `no`."

	msgMinorPolicy = "We prohibit any form of non-consensual sharing or threat to share sexual content. " +
		"We will review the report and remove any content that violates our Community Standards."
	msgSubmitted     = "Your report has been submitted. Thank you for helping keep our community safe.\n"
	msgBlockQuestion = "Would you like to block this user to prevent them from messaging you again? Reply `yes` or `no`."
	msgBlocked       = "User blocked. Thank you again for the report, we will review it and take appropriate action."
	msgNotBlocked    = "Thank you for the report, we will review it and take appropriate action."

	msgCancelled = "Report cancelled."
	msgNoBack    = "There is no previous step to go back to."

	msgConfirmPrefix = "Thank you."
	keywordConfirm   = "confirm"

	divider = "▬▬▬▬▬▬▬▬▬▬▬▬▬▬▬▬▬▬▬▬"
)

// HelpText is the in-session help, one reply per line.
var HelpText = []string{
	"To report a message:",
	"1. Use the `report` command",
	"2. Provide the message link when prompted",
	"3. Select a report reason from the menu",
	"4. Provide specifics and confirm the report",
	"\nYou can cancel at any time by saying `cancel`, or undo your last answer by saying `back`.",
}

func optionList(b *strings.Builder, names []string) {
	for i, n := range names {
		fmt.Fprintf(b, "`[%d]` %s\n", i+1, n)
	}
	b.WriteString("\n*Please reply with a number from the options above.*")
}

func (s *Session) reasonPrompt() string {
	var b strings.Builder
	b.WriteString("I found this message:\n```")
	b.WriteString(s.target.AuthorName + ": " + s.target.Content)
	b.WriteString("```\n**What is the reason for this report?**\n")
	names := make([]string, len(Reasons))
	for i, r := range Reasons {
		names[i] = r.Name
	}
	optionList(&b, names)
	return b.String()
}

func (s *Session) subtypePrompt() string {
	r := Reasons[s.reason]
	var b strings.Builder
	b.WriteString("**" + r.Question + "**\n")
	names := make([]string, len(r.Subtypes))
	for i, st := range r.Subtypes {
		names[i] = st.Name
	}
	optionList(&b, names)
	return b.String()
}

func (s *Session) confirmationPrompt() []string {
	var b strings.Builder
	b.WriteString("Your report is ready to be submitted.\n")
	b.WriteString("To confirm, here are the details of your report:\n")
	b.WriteString("> " + divider + "\n")
	b.WriteString("> Message: " + s.target.JumpURL() + "\n")
	if r, ok := s.Reason(); ok {
		b.WriteString("> Reason: " + r.Name + "\n")
	}
	if st, ok := s.Subtype(); ok {
		b.WriteString("> Specifics: " + st.Name + "\n")
	}
	if s.minor != Unset {
		b.WriteString("> Are you a minor: " + yesNo(s.minor.Bool()) + "\n")
	}
	b.WriteString("> " + divider + "\n")
	b.WriteString("\nIf this is correct, reply `confirm`. If not, reply `cancel`.")
	return []string{msgConfirmPrefix, b.String()}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
