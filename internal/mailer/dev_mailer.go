package mailer

import (
	"fmt"

	"github.com/storehouse/accounts/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerificationEmail(toEmail, toName, verifyURL, token string) error {
	logger.Info("[DEV MAIL] Verification Email",
		"to", toEmail,
		"name", toName,
		"verify_url", verifyURL,
		"token", token,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"VERIFICATION EMAIL (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s (%s)\n"+
		"Subject: Verify your Storehouse account\n"+
		"\n"+
		"Verification URL: %s\n"+
		"Token: %s\n"+
		"=================================================================\n\n",
		toEmail, toName, verifyURL, token)

	return nil
}

func (d *DevMailer) SendPasswordChangedEmail(toEmail, toName string) error {
	logger.Info("[DEV MAIL] Password Changed Email",
		"to", toEmail,
		"name", toName,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"PASSWORD CHANGED EMAIL (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s (%s)\n"+
		"Subject: Your Storehouse password was changed\n"+
		"=================================================================\n\n",
		toEmail, toName)

	return nil
}
