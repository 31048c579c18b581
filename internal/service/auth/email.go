package auth

import (
	"fmt"
	"html"
	"net/url"
	"sync"
	"time"

	"backoffice-iam/internal/service/email"

	"go.uber.org/zap"
)

// EmailHelper handles email template generation and sending
type EmailHelper struct {
	sender   email.Sender
	logger   *zap.Logger
	resetURL string
	wg       sync.WaitGroup
}

func NewEmailHelper(sender email.Sender, logger *zap.Logger, resetURL string) *EmailHelper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailHelper{
		sender:   sender,
		logger:   logger.Named("mailer"),
		resetURL: resetURL,
	}
}

// ========== Password Reset ==========

// PasswordResetEmail builds a password reset email
func (h *EmailHelper) PasswordResetEmail(fullName, token string, ttl time.Duration) (string, string) {
	link := h.resetURL + "?token=" + url.QueryEscape(token)

	subject := "Password Reset Request"
	body := fmt.Sprintf(`
		<h2>Password Reset Request</h2>
		<p>Hello %s,</p>
		<p>We received a request to reset the password of your back office account.</p>
		<p><a href="%s" class="button">Reset Password</a></p>
		<p>Or copy and paste this link into your browser:</p>
		<p>%s</p>
		<div class="warning">
			<ul>
				<li>This link expires in %d minutes and works once.</li>
				<li>If you didn't request this, you can ignore this email.</li>
			</ul>
		</div>
	`, html.EscapeString(fullName), html.EscapeString(link), html.EscapeString(link), int(ttl.Minutes()))

	return subject, body
}

func (h *EmailHelper) SendPasswordResetEmail(to, fullName, token string, ttl time.Duration) {
	subject, body := h.PasswordResetEmail(fullName, token, ttl)
	h.send("password reset", to, subject, body)
}

// ========== Password Changed ==========

func (h *EmailHelper) PasswordChangedEmail(fullName string, at time.Time) (string, string) {
	subject := "Your Password Was Changed"
	body := fmt.Sprintf(`
		<h2>Password Changed</h2>
		<p>Hello %s,</p>
		<p>The password of your back office account was changed on %s.</p>
		<p>All of your sessions have been signed out.</p>
		<div class="warning">If this wasn't you, contact a super admin immediately.</div>
	`, html.EscapeString(fullName), at.UTC().Format(time.RFC1123))

	return subject, body
}

func (h *EmailHelper) SendPasswordChangedEmail(to, fullName string, at time.Time) {
	subject, body := h.PasswordChangedEmail(fullName, at)
	h.send("password changed", to, subject, body)
}

// ========== Account Created ==========

func (h *EmailHelper) AccountCreatedEmail(fullName, emailAddr, roleName string) (string, string) {
	subject := "Your Back Office Account"
	body := fmt.Sprintf(`
		<h2>Welcome</h2>
		<p>Hello %s,</p>
		<p>An administrator created a back office account for <strong>%s</strong> with the role <strong>%s</strong>.</p>
		<p>Your initial password will be shared with you separately. Change it after your first sign in.</p>
	`, html.EscapeString(fullName), html.EscapeString(emailAddr), html.EscapeString(roleName))

	return subject, body
}

func (h *EmailHelper) SendAccountCreatedEmail(to, fullName, roleName string) {
	subject, body := h.AccountCreatedEmail(fullName, to, roleName)
	h.send("account created", to, subject, body)
}

// ========== Account Locked ==========

func (h *EmailHelper) AccountLockedEmail(fullName string, until time.Time) (string, string) {
	subject := "Your Account Has Been Locked"
	body := fmt.Sprintf(`
		<h2>Account Locked</h2>
		<p>Hello %s,</p>
		<p>Your back office account was locked after repeated failed sign in attempts.</p>
		<p>You can try again after %s, or ask a super admin to unlock it.</p>
		<div class="warning">If these attempts weren't yours, reset your password once the lock expires.</div>
	`, html.EscapeString(fullName), until.UTC().Format(time.RFC1123))

	return subject, body
}

func (h *EmailHelper) SendAccountLockedEmail(to, fullName string, until time.Time) {
	subject, body := h.AccountLockedEmail(fullName, until)
	h.send("account locked", to, subject, body)
}

// send hands the message to the sender in the background.
func (h *EmailHelper) send(kind, to, subject, body string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.sender.Send(to, subject, body); err != nil {
			h.logger.Error("failed to send email",
				zap.String("kind", kind),
				zap.String("email", to),
				zap.Error(err),
			)
			return
		}
		h.logger.Info("email sent", zap.String("kind", kind), zap.String("email", to))
	}()
}

// Wait blocks until queued emails are handed to the sender.
func (h *EmailHelper) Wait() {
	h.wg.Wait()
}
