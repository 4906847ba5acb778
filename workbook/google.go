package workbook

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Spreadsheet mirrors workbooks to and from a Google Sheets spreadsheet.
type Spreadsheet struct {
	ID     string
	sheets *sheets.Service
	drive  *drive.Service
}

// Revision identifies the most recent revision of a spreadsheet.
type Revision struct {
	ID       string
	Modified time.Time
}

var spreadsheetURL = regexp.MustCompile(`^https://docs.google.com/spreadsheets/d/(.*?)(?:/.*)?$`)

// SpreadsheetID extracts the spreadsheet ID from a Google Sheets URL.
func SpreadsheetID(url string) (string, error) {
	match := spreadsheetURL.FindStringSubmatch(strings.TrimSpace(url))
	if len(match) < 2 || match[1] == "" {
		return "", domain.ErrConfiguration("invalid spreadsheet URL '%s' - expected something like 'https://docs.google.com/spreadsheets/d/1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms'", url)
	}

	return match[1], nil
}

// NewSpreadsheet creates the Sheets and Drive clients for the spreadsheet at url. The client
// options are typically option.WithHTTPClient with an authorised OAuth2 client.
func NewSpreadsheet(ctx context.Context, url string, opts ...option.ClientOption) (*Spreadsheet, error) {
	id, err := SpreadsheetID(url)
	if err != nil {
		return nil, err
	}

	s, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, domain.ErrSourceUnavailable("unable to create new Sheets client (%w)", err)
	}

	d, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, domain.ErrSourceUnavailable("unable to create new Drive client (%w)", err)
	}

	return &Spreadsheet{
		ID:     id,
		sheets: s,
		drive:  d,
	}, nil
}

// Put replaces the contents of a worksheet for every sheet in the workbook, adding any
// worksheets that do not already exist. Other worksheets are left unchanged.
func (s *Spreadsheet) Put(ctx context.Context, workbook Sheets) error {
	if err := validate(workbook); err != nil {
		return err
	}

	titles, err := s.titles(ctx)
	if err != nil {
		return err
	}

	// ... add missing worksheets
	requests := []*sheets.Request{}
	for _, sheet := range workbook {
		if !contains(titles, sheet.Name) {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheet.Name,
					},
				},
			})
		}
	}

	if len(requests) > 0 {
		rq := sheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}

		if _, err := s.sheets.Spreadsheets.BatchUpdate(s.ID, &rq).Context(ctx).Do(); err != nil {
			return domain.ErrIOFailure("unable to add worksheets to spreadsheet %s (%w)", s.ID, err)
		}
	}

	// ... clear and update
	ranges := []string{}
	data := []*sheets.ValueRange{}
	for _, sheet := range workbook {
		ranges = append(ranges, quote(sheet.Name))
		data = append(data, &sheets.ValueRange{
			Range:  quote(sheet.Name) + "!A1",
			Values: MakeValues(sheet.Data),
		})
	}

	clear := sheets.BatchClearValuesRequest{
		Ranges: ranges,
	}

	if _, err := s.sheets.Spreadsheets.Values.BatchClear(s.ID, &clear).Context(ctx).Do(); err != nil {
		return domain.ErrIOFailure("unable to clear spreadsheet %s (%w)", s.ID, err)
	}

	update := sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}

	if _, err := s.sheets.Spreadsheets.Values.BatchUpdate(s.ID, &update).Context(ctx).Do(); err != nil {
		return domain.ErrIOFailure("unable to update spreadsheet %s (%w)", s.ID, err)
	}

	return nil
}

// Get retrieves every worksheet of the spreadsheet, in worksheet order.
func (s *Spreadsheet) Get(ctx context.Context) (Sheets, error) {
	titles, err := s.titles(ctx)
	if err != nil {
		return nil, err
	} else if len(titles) == 0 {
		return nil, domain.ErrMalformedWorkbook("spreadsheet %s has no worksheets", s.ID)
	}

	ranges := make([]string, len(titles))
	for i, title := range titles {
		ranges[i] = quote(title)
	}

	response, err := s.sheets.Spreadsheets.Values.BatchGet(s.ID).
		Ranges(ranges...).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, domain.ErrIOFailure("unable to retrieve data from spreadsheet %s (%w)", s.ID, err)
	}

	if len(response.ValueRanges) != len(titles) {
		return nil, domain.ErrMalformedWorkbook("spreadsheet %s returned %d ranges for %d worksheets", s.ID, len(response.ValueRanges), len(titles))
	}

	workbook := Sheets{}
	for i, vr := range response.ValueRanges {
		data, err := MakeDataset(titles[i], vr.Values)
		if err != nil {
			return nil, err
		}

		workbook = append(workbook, Sheet{Name: titles[i], Data: data})
	}

	return workbook, nil
}

// Revision returns the most recently modified revision of the spreadsheet.
func (s *Spreadsheet) Revision(ctx context.Context) (*Revision, error) {
	page := ""
	latest := Revision{}

	for {
		call := s.drive.Revisions.List(s.ID).Fields("nextPageToken", "revisions(id,modifiedTime)").Context(ctx)
		if page != "" {
			call.PageToken(page)
		}

		revisions, err := call.Do()
		if err != nil {
			return nil, domain.ErrIOFailure("unable to retrieve revisions for spreadsheet %s (%w)", s.ID, err)
		}

		for _, revision := range revisions.Revisions {
			modified, err := time.Parse(time.RFC3339Nano, revision.ModifiedTime)
			if err != nil {
				return nil, domain.ErrMalformedInput("invalid revision timestamp '%s' (%w)", revision.ModifiedTime, err)
			}

			if latest.Modified.Before(modified) {
				latest.ID = revision.Id
				latest.Modified = modified
			}
		}

		if page = revisions.NextPageToken; page == "" {
			break
		}
	}

	if latest.Modified.IsZero() {
		return nil, domain.ErrIOFailure("unable to identify latest revision for spreadsheet %s", s.ID)
	}

	return &latest, nil
}

func (s *Spreadsheet) titles(ctx context.Context) ([]string, error) {
	spreadsheet, err := s.sheets.Spreadsheets.Get(s.ID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, domain.ErrIOFailure("failed to fetch spreadsheet %s (%w)", s.ID, err)
	}

	titles := []string{}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}

	return titles, nil
}

func contains(titles []string, name string) bool {
	for _, title := range titles {
		if strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(name)) {
			return true
		}
	}

	return false
}

func quote(name string) string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(name, "'", "''"))
}
