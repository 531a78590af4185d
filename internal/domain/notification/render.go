package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"

	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// InactivitySubject is the subject line of the inactivity reminder.
const InactivitySubject = "Time to get back to problem solving!"

// WelcomeSubject is the subject line of the welcome message.
const WelcomeSubject = "Welcome to CF Progress Hub"

const problemsetURL = "https://codeforces.com/problemset"

type view struct {
	Name          string
	Handle        string
	CurrentRating string
	MaxRating     string
	WindowDays    int
	ProblemsetURL string
}

func ratingLabel(r int) string {
	if r <= 0 {
		return "Unrated"
	}
	return strconv.Itoa(r)
}

var inactivityHTML = htmltemplate.Must(htmltemplate.New("inactivity").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Hi {{.Name}}!</h2>
  <p>We noticed you haven't submitted any solutions in the past <strong>{{.WindowDays}} days</strong>.
  Don't let your skills get rusty!</p>
  <h3>Your progress</h3>
  <p><strong>Current rating:</strong> {{.CurrentRating}}</p>
  <p><strong>Max rating:</strong> {{.MaxRating}}</p>
  <p><strong>Codeforces handle:</strong> {{.Handle}}</p>
  <p><a href="{{.ProblemsetURL}}">Start solving problems</a></p>
</div>`))

var inactivityText = texttemplate.Must(texttemplate.New("inactivity").Parse(`Hi {{.Name}}!

You haven't submitted any solutions in the past {{.WindowDays}} days.

Current rating: {{.CurrentRating}}
Max rating: {{.MaxRating}}
Handle: {{.Handle}}

Pick a problem: {{.ProblemsetURL}}`))

var welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Welcome, {{.Name}}!</h2>
  <p>Your Codeforces handle <strong>{{.Handle}}</strong> is now tracked. Submissions and contests are synced daily.</p>
  <p><strong>Current rating:</strong> {{.CurrentRating}}</p>
</div>`))

var welcomeText = texttemplate.Must(texttemplate.New("welcome").Parse(`Welcome, {{.Name}}!

Your Codeforces handle {{.Handle}} is now tracked. Submissions and contests are synced daily.
Current rating: {{.CurrentRating}}`))

// Render builds the message of the given kind for a student. windowDays is
// the inactivity window mentioned in reminders.
func Render(kind Kind, s *student.Student, windowDays int) (Message, error) {
	v := view{
		Name:          s.Name,
		Handle:        s.Handle.String(),
		CurrentRating: ratingLabel(s.CurrentRating),
		MaxRating:     ratingLabel(s.MaxRating),
		WindowDays:    windowDays,
		ProblemsetURL: problemsetURL,
	}

	var (
		subject string
		html    *htmltemplate.Template
		text    *texttemplate.Template
	)
	switch kind {
	case KindInactivityReminder:
		subject, html, text = InactivitySubject, inactivityHTML, inactivityText
	case KindWelcome:
		subject, html, text = WelcomeSubject, welcomeHTML, welcomeText
	default:
		return Message{}, fmt.Errorf("render: unknown notification kind %q", kind)
	}

	var hb, tb bytes.Buffer
	if err := html.Execute(&hb, v); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := text.Execute(&tb, v); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}

	return Message{Kind: kind, Subject: subject, HTML: hb.String(), Text: tb.String()}, nil
}
