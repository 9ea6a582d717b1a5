package api

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	log "github.com/sirupsen/logrus"

	"github.com/irvolta/go-nav-client/nav"
	"github.com/irvolta/go-nav-client/nav/model"
	"github.com/irvolta/go-nav-client/nav/tpl"
	"github.com/irvolta/go-nav-client/nav/util"
)

var logger = log.WithField("component", "nav.api")

// MaxFilesPerQuery is the per-call ceiling on requested journal files.
// Larger requests are split into consecutive calls unless the service
// was created in strict mode.
const MaxFilesPerQuery = 50

const (
	statusEndpoint = "/queryCashRegisterFile/v1/queryCashRegisterStatus"
	filesEndpoint  = "/queryCashRegisterFile/v1/queryCashRegisterFile"
)

type CashRegisterService interface {
	// QueryStatus reports the available journal file range of one
	// cash register.
	QueryStatus(ctx context.Context, ap string, creds model.Credentials) (*model.FileRange, error)

	// QueryFiles downloads the named journal files as ZIP attachments,
	// one attachment per file number.
	QueryFiles(ctx context.Context, ap string, creds model.Credentials, fileNumbers []int) ([]model.Attachment, error)
}

type cashRegister struct {
	client   Client
	baseURL  string
	software model.Software
	chunking bool
}

// NewCashRegisterService prepares the cash register client. Requests
// above MaxFilesPerQuery are chunked transparently.
func NewCashRegisterService(client Client, env nav.Environment) CashRegisterService {
	return &cashRegister{
		client:   client,
		baseURL:  env.CashRegisterBaseURL(),
		software: model.DefaultSoftware(),
		chunking: true,
	}
}

// NewStrictCashRegisterService behaves like NewCashRegisterService but
// fails oversized file queries with ErrRequestTooLarge instead of
// chunking them.
func NewStrictCashRegisterService(client Client, env nav.Environment) CashRegisterService {
	return &cashRegister{
		client:   client,
		baseURL:  env.CashRegisterBaseURL(),
		software: model.DefaultSoftware(),
		chunking: false,
	}
}

func (s *cashRegister) QueryStatus(ctx context.Context, ap string, creds model.Credentials) (*model.FileRange, error) {

	log.Debugf("Cash register status query for AP %s", ap)

	req, err := newSignedRequest(creds, s.software)
	if err != nil {
		return nil, err
	}
	req.APNumber = ap

	body, err := util.MergeTemplate(&tpl.QueryCashRegisterStatusRequest, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.PostXML(ctx, s.baseURL+statusEndpoint, contentTypeSOAP, body)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if perr := doc.ReadFromBytes(resp.Body()); perr != nil {
		if resp.StatusCode() != http.StatusOK {
			return nil, errors.Wrap(nav.ErrServiceUnavailable, fmt.Sprintf("HTTP %d", resp.StatusCode()))
		}
		return nil, errors.Wrap(nav.ErrMalformedResponse, perr.Error())
	}
	if err := checkResult(doc.Root()); err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Wrap(nav.ErrServiceUnavailable, fmt.Sprintf("HTTP %d", resp.StatusCode()))
	}

	return parseStatusResponse(doc.Root(), ap)
}

func parseStatusResponse(root *etree.Element, ap string) (*model.FileRange, error) {
	min, okMin := localInt(root, "minAvailableFileNumber")
	max, okMax := localInt(root, "maxAvailableFileNumber")
	if !okMin || !okMax {
		return nil, errors.Wrap(nav.ErrMalformedResponse, "missing available file number range")
	}

	fr := &model.FileRange{
		APNumber: localText(root, "APNumber"),
		Min:      min,
		Max:      max,
	}
	if fr.APNumber == "" {
		fr.APNumber = ap
	}
	fr.LastCommunication = parseNavTime(localText(root, "lastCommunicationDate"))
	fr.LastFileDate = parseNavTime(localText(root, "lastFileDate"))

	return fr, nil
}

// parseNavTime accepts the timestamp renderings NAV mixes in status
// responses. Zero time on failure, the fields are informational.
func parseNavTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *cashRegister) QueryFiles(ctx context.Context, ap string, creds model.Credentials, fileNumbers []int) ([]model.Attachment, error) {

	if len(fileNumbers) == 0 {
		return nil, nil
	}

	runs := contiguousRuns(fileNumbers)

	var chunks [][2]int
	for _, run := range runs {
		for start := run[0]; start <= run[1]; start += MaxFilesPerQuery {
			end := start + MaxFilesPerQuery - 1
			if end > run[1] {
				end = run[1]
			}
			chunks = append(chunks, [2]int{start, end})
		}
	}

	// strict mode caps the total count; non-contiguous sets still go
	// out as one call per run, the service only takes ranges
	if !s.chunking && len(fileNumbers) > MaxFilesPerQuery {
		return nil, errors.Wrap(nav.ErrRequestTooLarge,
			fmt.Sprintf("%d files requested, limit is %d per call", len(fileNumbers), MaxFilesPerQuery))
	}

	var attachments []model.Attachment
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		part, err := s.queryFileRange(ctx, ap, creds, chunk[0], chunk[1])
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, part...)
	}
	return attachments, nil
}

func (s *cashRegister) queryFileRange(ctx context.Context, ap string, creds model.Credentials, start, end int) ([]model.Attachment, error) {

	log.Debugf("Cash register file query for AP %s, files %d-%d", ap, start, end)

	req, err := newSignedRequest(creds, s.software)
	if err != nil {
		return nil, err
	}
	req.APNumber = ap
	req.FileNumberStart = start
	req.FileNumberEnd = end

	body, err := util.MergeTemplate(&tpl.QueryCashRegisterFileDataRequest, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.PostXML(ctx, s.baseURL+filesEndpoint, contentTypeSOAP, body)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "multipart/") {
		// plain XML body means a fault envelope
		doc := etree.NewDocument()
		if perr := doc.ReadFromBytes(resp.Body()); perr == nil {
			if err := checkResult(doc.Root()); err != nil {
				return nil, err
			}
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, errors.Wrap(nav.ErrServiceUnavailable, fmt.Sprintf("HTTP %d", resp.StatusCode()))
		}
		return nil, errors.Wrap(nav.ErrMalformedResponse, "expected multipart file response, got "+contentType)
	}

	return decodeAttachments(contentType, resp.Body())
}

// fileNumberFromName extracts the trailing file number from an
// attachment name like A29200455_69785346_20251119174852_1079.zip.
var fileNumberFromName = regexp.MustCompile(`_(\d+)(?:\.[Zz][Ii][Pp])?$`)

// decodeAttachments splits an MTOM multipart/related response into one
// attachment per binary part, keyed by the part's declared name.
func decodeAttachments(contentType string, body []byte) ([]model.Attachment, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, errors.Wrap(nav.ErrMalformedResponse, err.Error())
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.Wrap(nav.ErrMalformedResponse, "multipart response without boundary")
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	var attachments []model.Attachment

	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}

		partType := strings.ToLower(part.Header.Get("Content-Type"))
		if !strings.Contains(partType, "application/octet-stream") && !strings.Contains(partType, "application/zip") {
			// first part is the SOAP envelope; check it for a fault
			var buf bytes.Buffer
			if _, rerr := buf.ReadFrom(part); rerr == nil {
				doc := etree.NewDocument()
				if perr := doc.ReadFromBytes(buf.Bytes()); perr == nil {
					if ferr := checkResult(doc.Root()); ferr != nil {
						return nil, ferr
					}
				}
			}
			continue
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(part); err != nil {
			return nil, errors.Wrap(nav.ErrMalformedResponse, "reading attachment part: "+err.Error())
		}

		name := partName(part)
		att := model.Attachment{Name: name, Data: buf.Bytes()}
		if m := fileNumberFromName.FindStringSubmatch(name); m != nil {
			att.FileNumber, _ = strconv.Atoi(m[1])
		}
		attachments = append(attachments, att)
	}

	if len(attachments) == 0 {
		return nil, errors.Wrap(nav.ErrMalformedResponse, "multipart response carried no binary attachment")
	}

	logger.WithField("attachments", len(attachments)).Debug("Decoded multipart file response")
	return attachments, nil
}

func partName(part *multipart.Part) string {
	if _, params, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err == nil {
		if n := params["name"]; n != "" {
			return n
		}
	}
	if fn := part.FileName(); fn != "" {
		return fn
	}
	cid := part.Header.Get("Content-ID")
	cid = strings.TrimPrefix(cid, "<")
	cid = strings.TrimSuffix(cid, ">")
	return cid
}

// contiguousRuns turns an arbitrary file number set into sorted,
// de-duplicated inclusive ranges.
func contiguousRuns(fileNumbers []int) [][2]int {
	nums := append([]int(nil), fileNumbers...)
	sort.Ints(nums)

	var runs [][2]int
	for i, n := range nums {
		if i > 0 && n == nums[i-1] {
			continue
		}
		if len(runs) > 0 && n == runs[len(runs)-1][1]+1 {
			runs[len(runs)-1][1] = n
			continue
		}
		runs = append(runs, [2]int{n, n})
	}
	return runs
}
