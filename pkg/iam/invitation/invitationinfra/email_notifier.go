package invitationinfra

import (
	"context"
	"fmt"

	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/invitation"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/notifx"
)

const inviteTemplateName = "invitation"

const inviteTemplateHTML = `<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
	<h2>You've been invited to {{.TenantName}}</h2>
	<p>Hi {{.RecipientName}},</p>
	<p>An administrator of <strong>{{.TenantName}}</strong> has invited you to join their workspace.</p>
	{{if .CustomMessage}}<blockquote style="border-left: 3px solid #ccc; padding-left: 12px; color: #555;">{{.CustomMessage}}</blockquote>{{end}}
	<p><a href="{{.AcceptURL}}" style="display: inline-block; padding: 10px 20px; background: #2563eb; color: #fff; text-decoration: none; border-radius: 6px;">Accept invitation</a></p>
	<p style="color: #888; font-size: 13px;">This invitation expires on {{.ExpiresAt}}. If you weren't expecting it, you can ignore this email.</p>
</body>
</html>`

type inviteTemplateData struct {
	RecipientName string
	TenantName    string
	AcceptURL     string
	CustomMessage string
	ExpiresAt     string
}

// EmailNotifier delivers invitation emails through notifx.
type EmailNotifier struct {
	mail *notifx.Client
	cfg  config.NotifxConfig
}

// NewEmailNotifier creates an invitation notifier backed by the given mail
// client. The invitation template is registered eagerly so a broken template
// fails at wiring time, not on the first invite.
func NewEmailNotifier(mail *notifx.Client, cfg config.NotifxConfig) (*EmailNotifier, error) {
	if err := mail.RegisterTemplate(inviteTemplateName, inviteTemplateHTML); err != nil {
		return nil, errx.Wrap(err, "register invitation template", errx.TypeInternal)
	}
	return &EmailNotifier{mail: mail, cfg: cfg}, nil
}

var _ invitation.Notifier = (*EmailNotifier)(nil)

// NotifyInvited sends the invitation email to the recipient address. The
// accept link carries the raw invitation token; the email goes to the address
// the inviter typed, which may differ from the deconflicted address stored on
// the user row.
func (n *EmailNotifier) NotifyInvited(ctx context.Context, u *user.User, t *tenant.Tenant, _ kernel.UserID, recipientEmail, customMessage string) error {
	if u.InvitationToken == nil {
		return invitation.ErrInvalidOrExpiredToken()
	}

	name := u.FirstName
	if name == "" {
		name = u.Username
	}

	expires := "soon"
	if u.InvitationExpiresAt != nil {
		expires = u.InvitationExpiresAt.Format("January 2, 2006")
	}

	data := inviteTemplateData{
		RecipientName: name,
		TenantName:    t.Name,
		AcceptURL:     fmt.Sprintf("%s?token=%s", n.cfg.InviteBaseURL, *u.InvitationToken),
		CustomMessage: customMessage,
		ExpiresAt:     expires,
	}

	msg := notifx.EmailMessage{
		From:    fmt.Sprintf("%s <%s>", n.cfg.FromName, n.cfg.FromAddress),
		To:      []string{recipientEmail},
		Subject: fmt.Sprintf("You've been invited to join %s", t.Name),
	}

	return n.mail.SendTemplatedEmail(ctx, inviteTemplateName, data, msg)
}
