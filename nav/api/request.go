package api

import (
	"strconv"

	"github.com/beevik/etree"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/model"
	"github.com/irvolta/go-nav-client/nav/signature"
)

// signedRequest carries the fields every NAV request template needs.
// A fresh instance is built per request: the timestamp is part of the
// signature base, so nothing here may be reused.
type signedRequest struct {
	RequestID        string
	Timestamp        string
	Login            string
	PasswordHash     string
	TaxNumber        string
	RequestSignature string
	Software         model.Software

	// cash register queries
	APNumber        string
	FileNumberStart int
	FileNumberEnd   int

	// invoice digest queries
	Page      int
	Direction string
	DateFrom  string
	DateTo    string
}

func newSignedRequest(creds model.Credentials, software model.Software, extraKeys ...string) (*signedRequest, error) {
	rid := signature.NewRequestID()
	ts := signature.Now()

	sig, err := signature.RequestSignature(rid, ts, creds.SignKey, extraKeys...)
	if err != nil {
		return nil, err
	}

	return &signedRequest{
		RequestID:        rid,
		Timestamp:        ts.ISO(),
		Login:            creds.Login,
		PasswordHash:     signature.PasswordHash(creds.Password),
		TaxNumber:        creds.TaxNumber,
		RequestSignature: sig,
		Software:         software,
	}, nil
}

// firstLocal finds the first element with the given local tag name,
// ignoring namespace prefixes. NAV responses prefix elements with
// unstable ns2/ns3 prefixes, so matching on the local name is the
// only stable option.
func firstLocal(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == tag {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := firstLocal(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func allLocal(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	if el == nil {
		return out
	}
	if el.Tag == tag {
		out = append(out, el)
	}
	for _, c := range el.ChildElements() {
		out = append(out, allLocal(c, tag)...)
	}
	return out
}

func localText(el *etree.Element, tag string) string {
	if found := firstLocal(el, tag); found != nil {
		return found.Text()
	}
	return ""
}

func localInt(el *etree.Element, tag string) (int, bool) {
	txt := localText(el, tag)
	if txt == "" {
		return 0, false
	}
	n, err := strconv.Atoi(txt)
	if err != nil {
		return 0, false
	}
	return n, true
}

// checkResult inspects the NAV result block and returns an APIError
// when funcCode is present and not OK. A missing result block is left
// to the caller: file query responses carry it inside the first
// multipart part only.
func checkResult(root *etree.Element) error {
	fc := firstLocal(root, "funcCode")
	if fc == nil || fc.Text() == "OK" {
		return nil
	}
	return &nav.APIError{
		FuncCode:  fc.Text(),
		ErrorCode: localText(root, "errorCode"),
		Message:   localText(root, "message"),
	}
}
