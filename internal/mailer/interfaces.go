package mailer

type Service interface {
	SendVerificationEmail(toEmail, toName, verifyURL, token string) error
	SendPasswordChangedEmail(toEmail, toName string) error
}
