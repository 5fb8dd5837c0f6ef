package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is built by hand with encoding/xml; only the verbs the dialer uses exist here.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName        xml.Name         `xml:"Dial"`
	CallerID       string           `xml:"callerId,attr,omitempty"`
	AnswerOnBridge bool             `xml:"answerOnBridge,attr,omitempty"`
	Record         string           `xml:"record,attr,omitempty"`
	Number         string           `xml:"Number,omitempty"`
	Client         string           `xml:"Client,omitempty"`
	Conference     *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	Name                   string `xml:",chardata"`
	StartConferenceOnEnter bool   `xml:"startConferenceOnEnter,attr"`
	EndConferenceOnExit    bool   `xml:"endConferenceOnExit,attr"`
	Beep                   string `xml:"beep,attr,omitempty"`
}

var ErrEmptyDialTarget = errors.New("telephony: dial target required")

// DialNumberTwiML connects the current leg to number.
func DialNumberTwiML(number, callerID string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", ErrEmptyDialTarget
	}
	return render(twimlDial{CallerID: callerID, AnswerOnBridge: true, Number: number})
}

// DialClientTwiML rings the browser client identity.
func DialClientTwiML(identity, callerID string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", ErrEmptyDialTarget
	}
	return render(twimlDial{CallerID: callerID, AnswerOnBridge: true, Client: identity})
}

// ConferenceTwiML joins the conference named name.
// endOnExit ends the room when this participant hangs up.
func ConferenceTwiML(name string, endOnExit bool) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyDialTarget
	}
	return render(twimlDial{Conference: &twimlConference{
		Name:                   name,
		StartConferenceOnEnter: true,
		EndConferenceOnExit:    endOnExit,
		Beep:                   "false",
	}})
}

func SayTwiML(text string) (string, error) {
	return render(twimlSay{Text: text})
}

func SayHangupTwiML(text string) (string, error) {
	return render(twimlSay{Text: text}, twimlHangup{})
}

func render(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
