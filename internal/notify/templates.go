package notify

import "fmt"

// Mail copy for the four lifecycle notifications. Text and HTML variants
// share wording; HTML only adds light formatting.

func licenseCreatedSubject() string {
	return "Your License and User Key"
}

func licenseCreatedText(license, userKey, validTill string) string {
	return fmt.Sprintf(`Dear Customer,

We are pleased to provide you with your new license and user key. Please find the details below:

License: %s
User Key: %s
Valid till: %s

Keep this information safe as it will be required for future validations and renewals.

Thank you for choosing us!`, license, userKey, validTill)
}

func licenseCreatedHTML(license, userKey, validTill string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 20px auto; border: 1px solid #eaeaea; border-radius: 5px; padding: 20px;">
    <h2>Your License and User Key</h2>
    <p>Dear Customer,</p>
    <p>We are pleased to provide you with your new license and user key:</p>
    <ul>
      <li><strong>License:</strong> %s</li>
      <li><strong>User Key:</strong> %s</li>
      <li><strong>Valid till:</strong> %s</li>
    </ul>
    <p>Keep this information safe as it will be required for future validations and renewals.</p>
    <p>Thank you for choosing us!</p>
  </div>
</body>
</html>`, license, userKey, validTill)
}

func licenseRenewedSubject() string {
	return "License Renewal Confirmation"
}

func licenseRenewedText(license, renewedUntil string) string {
	return fmt.Sprintf(`Dear Customer,

Your license with ID %s has been successfully renewed.
It is now valid until %s.

Thank you for staying with us!`, license, renewedUntil)
}

func licenseRenewedHTML(license, renewedUntil string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 20px auto; border: 1px solid #eaeaea; border-radius: 5px; padding: 20px;">
    <h2>License Renewal Confirmation</h2>
    <p>Dear Customer,</p>
    <p>Your license with ID <strong>%s</strong> has been successfully renewed.</p>
    <p>It is now valid until <strong>%s</strong>.</p>
    <p>Thank you for staying with us!</p>
  </div>
</body>
</html>`, license, renewedUntil)
}

func licenseWarningSubject() string {
	return "License Expiration Warning"
}

func licenseWarningText(license string, remainingDays int) string {
	return fmt.Sprintf(`Dear Customer,

Your license (ID: %s) is about to expire. Only %d day(s) remain.

Please consider renewing your license promptly to avoid service interruption.`, license, remainingDays)
}

func licenseWarningHTML(license string, remainingDays int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 20px auto; border: 1px solid #eaeaea; border-radius: 5px; padding: 20px;">
    <h2>License Expiration Warning</h2>
    <p>Dear Customer,</p>
    <p>Your license (ID: <strong>%s</strong>) is about to expire. Only <strong>%d day(s)</strong> remain.</p>
    <p>Please consider renewing your license promptly to avoid service interruption.</p>
  </div>
</body>
</html>`, license, remainingDays)
}

func licenseExpiredSubject() string {
	return "License Expired"
}

func licenseExpiredText(license string) string {
	return fmt.Sprintf(`Dear Customer,

Your license (ID: %s) has expired and has been blocked.

You may still renew it within the grace period. After that the license is permanently blocked and a new one must be issued.`, license)
}

func licenseExpiredHTML(license string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 20px auto; border: 1px solid #eaeaea; border-radius: 5px; padding: 20px;">
    <h2>License Expired</h2>
    <p>Dear Customer,</p>
    <p>Your license (ID: <strong>%s</strong>) has expired and has been blocked.</p>
    <p>You may still renew it within the grace period. After that the license is permanently blocked and a new one must be issued.</p>
  </div>
</body>
</html>`, license)
}
