package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"

	"github.com/stwalsh4118/urnext/internal/models"
)

var inviteTemplate = template.Must(template.New("invite").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif;">
    <h2>You're invited to {{.WatchlistName}}</h2>
    <p>{{.InvitedByName}} wants to share a watchlist with you. Take turns picking what to watch next.</p>
    <p><a href="{{.Link}}">Accept the invitation</a></p>
    <p style="color: #888; font-size: 12px;">If you weren't expecting this, you can ignore this email.</p>
  </body>
</html>`))

type inviteView struct {
	WatchlistName string
	InvitedByName string
	Link          string
}

// InviteLink returns the accept link for an invite
func InviteLink(baseURL string, invite *models.PendingInvite) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid invite base url: %w", err)
	}
	q := u.Query()
	q.Set("invite", invite.ID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ComposeInvite builds the invite email for a pending invite
func ComposeInvite(from, baseURL string, invite *models.PendingInvite) (Message, error) {
	link, err := InviteLink(baseURL, invite)
	if err != nil {
		return Message{}, err
	}

	var body bytes.Buffer
	err = inviteTemplate.Execute(&body, inviteView{
		WatchlistName: invite.WatchlistName,
		InvitedByName: invite.InvitedByName,
		Link:          link,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render invite email: %w", err)
	}

	return Message{
		From:    from,
		To:      invite.Email,
		Subject: fmt.Sprintf("%s invited you to join their watchlist", invite.InvitedByName),
		HTML:    body.String(),
	}, nil
}
