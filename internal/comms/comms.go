// Package comms implements communication actions: a local contact
// book with vCard export, email send and list, WhatsApp sending via
// keyboard automation, and LinkedIn post drafting.
package comms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-vcard"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/config"
)

// Contact is one address book entry.
type Contact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// KeySender types text and presses keys in the focused window. The
// input package implements it.
type KeySender interface {
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
}

// Comms holds communication action state.
type Comms struct {
	db        *sql.DB
	email     config.EmailConfig
	workspace string
	keys      KeySender
	logger    *slog.Logger

	// injectable for tests
	sendMail func(ctx context.Context, cfg config.SMTPConfig, from string, rcpts []string, msg []byte) error
	listMail func(ctx context.Context, cfg config.IMAPConfig, limit int) ([]EmailSummary, error)
	open     func(ctx context.Context, target string) error
}

// New creates the comms action set and runs its migrations. keys may
// be nil; send_whatsapp then only opens the chat without typing.
func New(db *sql.DB, email config.EmailConfig, workspace string, keys KeySender, logger *slog.Logger) (*Comms, error) {
	c := &Comms{
		db:        db,
		email:     email,
		workspace: workspace,
		keys:      keys,
		logger:    logger,
		sendMail:  sendSMTP,
		listMail:  listIMAP,
		open: func(ctx context.Context, target string) error {
			cmd := "xdg-open"
			if runtime.GOOS == "darwin" {
				cmd = "open"
			}
			return exec.CommandContext(ctx, cmd, target).Start()
		},
	}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("migrate comms: %w", err)
	}
	return c, nil
}

func (c *Comms) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS linkedin_drafts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	return err
}

// AddContact inserts an address book entry.
func (c *Comms) AddContact(ctx context.Context, name, email, phone string) (*Contact, error) {
	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO contacts (name, email, phone, created_at) VALUES (?, ?, ?, ?)`,
		name, email, phone, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Contact{ID: id, Name: name, Email: email, Phone: phone, CreatedAt: now}, nil
}

// FindContact looks a contact up by (case-insensitive) name.
func (c *Comms) FindContact(ctx context.Context, name string) (*Contact, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, created_at FROM contacts
		 WHERE name = ? COLLATE NOCASE LIMIT 1`, name)

	var contact Contact
	var email, phone sql.NullString
	var created string
	if err := row.Scan(&contact.ID, &contact.Name, &email, &phone, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no contact named %q", name)
		}
		return nil, fmt.Errorf("lookup contact: %w", err)
	}
	contact.Email = email.String
	contact.Phone = phone.String
	contact.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &contact, nil
}

// ListContacts returns the address book sorted by name.
func (c *Comms) ListContacts(ctx context.Context) ([]Contact, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, email, phone, created_at FROM contacts ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var contact Contact
		var email, phone sql.NullString
		var created string
		if err := rows.Scan(&contact.ID, &contact.Name, &email, &phone, &created); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contact.Email = email.String
		contact.Phone = phone.String
		contact.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// ExportVCard writes a contact as a vCard 4.0 file in the workspace
// and returns the path.
func (c *Comms) ExportVCard(ctx context.Context, name string) (string, error) {
	contact, err := c.FindContact(ctx, name)
	if err != nil {
		return "", err
	}

	card := vcard.Card{}
	card.SetValue(vcard.FieldFormattedName, contact.Name)
	if contact.Email != "" {
		card.SetValue(vcard.FieldEmail, contact.Email)
	}
	if contact.Phone != "" {
		card.SetValue(vcard.FieldTelephone, contact.Phone)
	}
	vcard.ToV4(card)

	path := filepath.Join(c.workspace, sanitizeFilename(contact.Name)+".vcf")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create vcard file: %w", err)
	}
	defer file.Close()

	if err := vcard.NewEncoder(file).Encode(card); err != nil {
		return "", fmt.Errorf("encode vcard: %w", err)
	}
	return path, nil
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
}

// --- actions ---

func (c *Comms) addContactAction(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("name")
	if err != nil {
		return "", err
	}
	contact, err := c.AddContact(ctx, name, p.StringOr("email", ""), p.StringOr("phone", ""))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Contact %d added: %s", contact.ID, contact.Name), nil
}

func (c *Comms) listContactsAction(ctx context.Context, p actions.Params) (string, error) {
	contacts, err := c.ListContacts(ctx)
	if err != nil {
		return "", err
	}
	if len(contacts) == 0 {
		return "No contacts yet.", nil
	}
	var b strings.Builder
	for _, contact := range contacts {
		fmt.Fprintf(&b, "%s", contact.Name)
		if contact.Email != "" {
			fmt.Fprintf(&b, " <%s>", contact.Email)
		}
		if contact.Phone != "" {
			fmt.Fprintf(&b, " %s", contact.Phone)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Comms) exportContactAction(ctx context.Context, p actions.Params) (string, error) {
	name, err := p.String("name")
	if err != nil {
		return "", err
	}
	path, err := c.ExportVCard(ctx, name)
	if err != nil {
		return "", err
	}
	return "Exported vCard to " + path, nil
}

func (c *Comms) sendEmailAction(ctx context.Context, p actions.Params) (string, error) {
	if c.email.SMTP.Host == "" {
		return "", fmt.Errorf("email is not configured")
	}
	to, err := p.String("to")
	if err != nil {
		return "", err
	}
	subject, err := p.String("subject")
	if err != nil {
		return "", err
	}
	body, err := p.String("body")
	if err != nil {
		return "", err
	}

	// A bare name resolves through the contact book.
	if !strings.Contains(to, "@") {
		contact, err := c.FindContact(ctx, to)
		if err != nil {
			return "", err
		}
		if contact.Email == "" {
			return "", fmt.Errorf("contact %q has no email address", contact.Name)
		}
		to = contact.Email
	}

	from := c.email.SMTP.From
	if from == "" {
		from = c.email.SMTP.Username
	}

	msg, err := composeMessage(from, []string{to}, subject, body)
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}
	if err := c.sendMail(ctx, c.email.SMTP, from, []string{to}, msg); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	c.logger.Info("email sent", "to", to, "subject", subject)
	return "Email sent to " + to, nil
}

func (c *Comms) listEmailsAction(ctx context.Context, p actions.Params) (string, error) {
	if c.email.IMAP.Host == "" {
		return "", fmt.Errorf("email is not configured")
	}
	limit := p.IntOr("count", 10)

	summaries, err := c.listMail(ctx, c.email.IMAP, limit)
	if err != nil {
		return "", fmt.Errorf("list inbox: %w", err)
	}
	if len(summaries) == 0 {
		return "Inbox is empty.", nil
	}

	var b strings.Builder
	for _, s := range summaries {
		marker := " "
		if s.Unread {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s — %s (%s)\n", marker, s.From, s.Subject, s.Date.Local().Format("Jan 2 15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Comms) sendWhatsappAction(ctx context.Context, p actions.Params) (string, error) {
	to, err := p.String("to")
	if err != nil {
		return "", err
	}
	message, err := p.String("message")
	if err != nil {
		return "", err
	}

	phone := to
	if !strings.HasPrefix(to, "+") {
		contact, err := c.FindContact(ctx, to)
		if err != nil {
			return "", err
		}
		if contact.Phone == "" {
			return "", fmt.Errorf("contact %q has no phone number", contact.Name)
		}
		phone = contact.Phone
	}
	phone = strings.NewReplacer("+", "", " ", "", "-", "").Replace(phone)

	target := "https://wa.me/" + phone + "?text=" + url.QueryEscape(message)
	if err := c.open(ctx, target); err != nil {
		return "", fmt.Errorf("open whatsapp: %w", err)
	}

	// Confirm the pre-filled message once the chat has loaded.
	if c.keys != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(8 * time.Second):
		}
		if err := c.keys.PressKey(ctx, "Return"); err != nil {
			return "WhatsApp chat opened; press Enter to send.", nil
		}
	}
	return "WhatsApp message sent to " + to, nil
}

func (c *Comms) draftLinkedinAction(ctx context.Context, p actions.Params) (string, error) {
	topic, err := p.String("topic")
	if err != nil {
		return "", err
	}
	content := p.StringOr("content", "")
	if content == "" {
		content = fmt.Sprintf("Thoughts on %s:\n\n- \n- \n- \n\n#%s", topic, hashtag(topic))
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO linkedin_drafts (topic, content, created_at) VALUES (?, ?, ?)`,
		topic, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("save draft: %w", err)
	}
	id, _ := res.LastInsertId()
	return fmt.Sprintf("LinkedIn draft %d saved:\n%s", id, content), nil
}

// hashtag turns "remote work" into "RemoteWork".
func hashtag(topic string) string {
	var b strings.Builder
	for _, word := range strings.Fields(topic) {
		r := []rune(word)
		b.WriteRune(unicode.ToUpper(r[0]))
		b.WriteString(string(r[1:]))
	}
	return b.String()
}

// Actions returns the communication action set.
func (c *Comms) Actions() []*actions.Action {
	return []*actions.Action{
		{Name: "add_contact", Description: "Add a contact with name, email, and phone", Handler: c.addContactAction},
		{Name: "list_contacts", Description: "List all saved contacts", Handler: c.listContactsAction},
		{Name: "export_contact", Description: "Export a contact as a vCard file", Handler: c.exportContactAction},
		{Name: "send_email", Description: "Send an email (markdown body) to an address or contact name", Handler: c.sendEmailAction},
		{Name: "list_recent_emails", Description: "List the newest inbox messages", Handler: c.listEmailsAction},
		{Name: "send_whatsapp", Description: "Send a WhatsApp message to a phone number or contact name", Handler: c.sendWhatsappAction},
		{Name: "draft_linkedin_post", Description: "Draft a LinkedIn post on a topic", Handler: c.draftLinkedinAction},
	}
}
