package notify

import (
	"fmt"
	"html"
)

const emailStyle = `
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }`

func otpEmailBody(code string, minutes int) (htmlBody, textBody string) {
	htmlBody = fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>%s
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Your Verification Code</h1></div>
        <p>Use the code below to finish signing in:</p>
        <div class="code">%s</div>
        <div class="warning"><strong>Security Notice:</strong> This code expires in %d minutes.</div>
        <p>If you did not try to sign in, change your password.</p>
        <div class="footer"><p>This is an automated message. Please do not reply to this email.</p></div>
    </div>
</body>
</html>
`, emailStyle, html.EscapeString(code), minutes)

	textBody = fmt.Sprintf(`Your Verification Code

Use the code below to finish signing in:

%s

This code expires in %d minutes.

If you did not try to sign in, change your password.
`, code, minutes)

	return htmlBody, textBody
}

func alertEmailBody(subject, body string) (htmlBody, textBody string) {
	htmlBody = fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>%s
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>%s</h1></div>
        <div class="warning">%s</div>
        <div class="footer"><p>Review active alerts in the admin console.</p></div>
    </div>
</body>
</html>
`, emailStyle, html.EscapeString(subject), html.EscapeString(body))

	textBody = fmt.Sprintf("%s\n\n%s\n\nReview active alerts in the admin console.\n", subject, body)
	return htmlBody, textBody
}
