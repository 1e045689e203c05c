// Package parser turns fetched portal pages into ordered rows of primitive
// fields. Every function is pure: no store access, no fetching, no side
// effects. Pages that do not look like the expected kind yield empty results
// rather than errors; the portal renders empty tables for empty collections.
package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/opencampus/portal-crawler/internal/catalog"
)

// InstitutionRow is one row of the institution listing.
type InstitutionRow struct {
	ID           int64
	Name         string
	Abbreviation string
}

// DepartmentRow is one row of an institution's department listing.
type DepartmentRow struct {
	ID   int64
	Name string
}

// ClassRow is one link of a department's class listing.
type ClassRow struct {
	ID   int64
	Name string
}

// ClassDetail is the header block of a class page. ECTS is kept in
// half-credit units since the portal awards halves.
type ClassDetail struct {
	Name         string
	Abbreviation string
	ECTS         int
}

// CourseRow is one row of the course listing.
type CourseRow struct {
	ID           int64
	Name         string
	Abbreviation string
	DegreeCode   string
}

// TeacherRow is one row of a department's teacher listing.
type TeacherRow struct {
	ID   int64
	Name string
}

// RoomRow is one room cell of a building schedule page.
type RoomRow struct {
	Building string
	Name     string
	Type     catalog.RoomType
}

// AdmissionRow is one row of a national-contest admission page.
type AdmissionRow struct {
	StudentID int64 // 0 when the admittee has no portal link
	Name      string
	Option    int
	State     string
}

// EnrollmentRow is one row of a class-instance enrollment page.
type EnrollmentRow struct {
	StudentID    int64
	Name         string
	Abbreviation string
	CourseAbbr   string
	StudentYear  int
	Attempt      int
	Statutes     string
}

// TurnRef names one turn linked from a class-instance page, e.g. "tp2".
type TurnRef struct {
	TypeAbbreviation string
	Number           int
}

// SlotRow is one weekly time slot of a turn. Start and End count minutes
// from midnight.
type SlotRow struct {
	Weekday  time.Weekday
	Start    int
	End      int
	Building string
	Room     string
	RoomType catalog.RoomType
}

// TurnDetail is the parsed body of a turn page.
type TurnDetail struct {
	Enrolled     int
	Capacity     int
	Minutes      int
	Routes       string
	Restrictions string
	State        string
	Teachers     []string
	Slots        []SlotRow
}

// StudentRow is one row of a turn's student listing.
type StudentRow struct {
	ID           int64
	Name         string
	Abbreviation string
	CourseAbbr   string
}

// linkID extracts the integer value of a query parameter from an anchor's
// href, returning 0 when absent or malformed.
func linkID(sel *goquery.Selection, param string) int64 {
	href, ok := sel.Attr("href")
	if !ok {
		return 0
	}
	u, err := url.Parse(href)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(u.Query().Get(param), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func cellText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

func cellInt(sel *goquery.Selection) int {
	n, _ := strconv.Atoi(cellText(sel))
	return n
}

// Institutions parses the institution listing.
func Institutions(doc *goquery.Document) []InstitutionRow {
	var rows []InstitutionRow
	doc.Find("table#institutions tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("a")
		id := linkID(link, "institution")
		if id == 0 {
			return
		}
		rows = append(rows, InstitutionRow{
			ID:           id,
			Name:         cellText(link),
			Abbreviation: cellText(tr.Find("td").Last()),
		})
	})
	return rows
}

// Years parses the academic-year selector into the list of years the
// current page offers, oldest first.
func Years(doc *goquery.Document) []int {
	var years []int
	doc.Find("select[name=year] option").Each(func(_ int, opt *goquery.Selection) {
		v, ok := opt.Attr("value")
		if !ok {
			return
		}
		year, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || year == 0 {
			return
		}
		years = append(years, year)
	})
	return years
}

// Departments parses an institution's department listing.
func Departments(doc *goquery.Document) []DepartmentRow {
	var rows []DepartmentRow
	doc.Find("table#departments a").Each(func(_ int, link *goquery.Selection) {
		id := linkID(link, "department")
		if id == 0 {
			return
		}
		rows = append(rows, DepartmentRow{ID: id, Name: cellText(link)})
	})
	return rows
}

// PeriodLetters parses the period tabs of a department year page, e.g.
// "a", "s1", "t3".
func PeriodLetters(doc *goquery.Document) []string {
	var letters []string
	doc.Find("ul#periods a").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if letter := u.Query().Get("period"); letter != "" {
			letters = append(letters, letter)
		}
	})
	return letters
}

// Classes parses a department period page's class links.
func Classes(doc *goquery.Document) []ClassRow {
	var rows []ClassRow
	doc.Find("table#classes a").Each(func(_ int, link *goquery.Selection) {
		id := linkID(link, "class")
		if id == 0 {
			return
		}
		rows = append(rows, ClassRow{ID: id, Name: cellText(link)})
	})
	return rows
}

// ClassHeader parses a class page's header block. The portal prints credits
// as a decimal ("6.0", "7.5"); they are stored doubled so half credits stay
// integral.
func ClassHeader(doc *goquery.Document) (ClassDetail, error) {
	var d ClassDetail
	title := cellText(doc.Find("div#class h1"))
	if open := strings.LastIndex(title, "("); open > 0 && strings.HasSuffix(title, ")") {
		d.Name = strings.TrimSpace(title[:open])
		d.Abbreviation = strings.TrimSpace(title[open+1 : len(title)-1])
	} else {
		d.Name = title
	}
	ectsText := cellText(doc.Find("div#class span.ects"))
	if ectsText != "" {
		credits, err := strconv.ParseFloat(ectsText, 64)
		if err != nil {
			return d, fmt.Errorf("parse ects %q: %w", ectsText, err)
		}
		d.ECTS = int(credits * 2)
	}
	return d, nil
}

// ClassSections parses the named free-text sections of a class page
// (program, bibliography, evaluation, ...) into a title → text map.
func ClassSections(doc *goquery.Document) map[string]string {
	sections := map[string]string{}
	doc.Find("div#class div.section").Each(func(_ int, sec *goquery.Selection) {
		title := cellText(sec.Find("h2"))
		if title == "" {
			return
		}
		sections[title] = cellText(sec.Find("div.body"))
	})
	return sections
}

// Courses parses the course listing of an institution.
func Courses(doc *goquery.Document) []CourseRow {
	var rows []CourseRow
	doc.Find("table#courses tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("a")
		id := linkID(link, "course")
		if id == 0 {
			return
		}
		cells := tr.Find("td")
		rows = append(rows, CourseRow{
			ID:           id,
			Name:         cellText(link),
			Abbreviation: cellText(cells.Eq(1)),
			DegreeCode:   cellText(cells.Eq(2)),
		})
	})
	return rows
}

// CourseYears parses a curricular-plan page into the first and last
// academic year the course was active. Both are 0 when the plan lists no
// years.
func CourseYears(doc *goquery.Document) (first, last int) {
	doc.Find("ul#plan-years li").Each(func(_ int, li *goquery.Selection) {
		year, err := strconv.Atoi(cellText(li))
		if err != nil || year == 0 {
			return
		}
		if first == 0 || year < first {
			first = year
		}
		if year > last {
			last = year
		}
	})
	return first, last
}

// Teachers parses a department's teacher listing.
func Teachers(doc *goquery.Document) []TeacherRow {
	var rows []TeacherRow
	doc.Find("table#teachers a").Each(func(_ int, link *goquery.Selection) {
		id := linkID(link, "teacher")
		if id == 0 {
			return
		}
		rows = append(rows, TeacherRow{ID: id, Name: cellText(link)})
	})
	return rows
}

// roomTypes maps the schedule page's data-type attribute to a room type.
var roomTypes = map[string]catalog.RoomType{
	"generic":    catalog.RoomGeneric,
	"classroom":  catalog.RoomClassroom,
	"auditorium": catalog.RoomAuditorium,
	"laboratory": catalog.RoomLaboratory,
	"computer":   catalog.RoomComputer,
	"meeting":    catalog.RoomMeeting,
	"masters":    catalog.RoomMasters,
}

// Rooms parses a campus schedule page: buildings as headers, each followed
// by its room cells.
func Rooms(doc *goquery.Document) []RoomRow {
	var rows []RoomRow
	doc.Find("div.building").Each(func(_ int, div *goquery.Selection) {
		building := cellText(div.Find("h3"))
		if building == "" {
			return
		}
		div.Find("td.room").Each(func(_ int, td *goquery.Selection) {
			name := cellText(td)
			if name == "" {
				return
			}
			kind := roomTypes[td.AttrOr("data-type", "")]
			rows = append(rows, RoomRow{Building: building, Name: name, Type: kind})
		})
	})
	return rows
}

// Admissions parses a course's national-contest admission page for one
// phase.
func Admissions(doc *goquery.Document) []AdmissionRow {
	var rows []AdmissionRow
	doc.Find("table#admissions tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}
		name := cellText(cells.Eq(2))
		if name == "" {
			return
		}
		rows = append(rows, AdmissionRow{
			Option:    cellInt(cells.Eq(0)),
			StudentID: linkID(cells.Eq(1).Find("a"), "student"),
			Name:      name,
			State:     cellText(cells.Eq(3)),
		})
	})
	return rows
}

// Enrollments parses a class-instance enrollment page.
func Enrollments(doc *goquery.Document) []EnrollmentRow {
	var rows []EnrollmentRow
	doc.Find("table#enrollments tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		link := tr.Find("a")
		id := linkID(link, "student")
		if id == 0 || cells.Length() < 6 {
			return
		}
		rows = append(rows, EnrollmentRow{
			StudentID:    id,
			Name:         cellText(link),
			Abbreviation: cellText(cells.Eq(1)),
			CourseAbbr:   cellText(cells.Eq(2)),
			StudentYear:  cellInt(cells.Eq(3)),
			Attempt:      cellInt(cells.Eq(4)),
			Statutes:     cellText(cells.Eq(5)),
		})
	})
	return rows
}

// TurnRefs parses a class-instance page's turn links ("t1", "tp2", ...).
func TurnRefs(doc *goquery.Document) []TurnRef {
	var refs []TurnRef
	doc.Find("ul#turns a").Each(func(_ int, link *goquery.Selection) {
		ref, err := SplitTurnLabel(cellText(link))
		if err != nil {
			return
		}
		refs = append(refs, ref)
	})
	return refs
}

// SplitTurnLabel splits a turn label into its type abbreviation and number,
// e.g. "tp12" → ("tp", 12).
func SplitTurnLabel(label string) (TurnRef, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	split := len(label)
	for split > 0 && label[split-1] >= '0' && label[split-1] <= '9' {
		split--
	}
	if split == 0 || split == len(label) {
		return TurnRef{}, fmt.Errorf("malformed turn label %q", label)
	}
	number, err := strconv.Atoi(label[split:])
	if err != nil {
		return TurnRef{}, fmt.Errorf("malformed turn label %q: %w", label, err)
	}
	return TurnRef{TypeAbbreviation: label[:split], Number: number}, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// clockMinutes parses "09:30" into minutes from midnight.
func clockMinutes(text string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", text)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed clock value %q", text)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed clock value %q", text)
	}
	return h*60 + m, nil
}

// Turn parses a turn detail page.
func Turn(doc *goquery.Document) (TurnDetail, error) {
	var d TurnDetail
	d.Enrolled = cellInt(doc.Find("div#turn span.enrolled"))
	d.Capacity = cellInt(doc.Find("div#turn span.capacity"))
	d.Minutes = cellInt(doc.Find("div#turn span.minutes"))
	d.Routes = cellText(doc.Find("div#turn span.routes"))
	d.Restrictions = cellText(doc.Find("div#turn span.restrictions"))
	d.State = cellText(doc.Find("div#turn span.state"))

	doc.Find("ul#turn-teachers li").Each(func(_ int, li *goquery.Selection) {
		if name := cellText(li); name != "" {
			d.Teachers = append(d.Teachers, name)
		}
	})

	var parseErr error
	doc.Find("table#slots tr.slot").Each(func(_ int, tr *goquery.Selection) {
		if parseErr != nil {
			return
		}
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}
		weekday, ok := weekdays[strings.ToLower(cellText(cells.Eq(0)))]
		if !ok {
			parseErr = fmt.Errorf("unknown weekday %q", cellText(cells.Eq(0)))
			return
		}
		start, err := clockMinutes(cellText(cells.Eq(1)))
		if err != nil {
			parseErr = err
			return
		}
		end, err := clockMinutes(cellText(cells.Eq(2)))
		if err != nil {
			parseErr = err
			return
		}
		slot := SlotRow{Weekday: weekday, Start: start, End: end}
		roomCell := cells.Eq(3)
		if place := cellText(roomCell); place != "" {
			building, room, found := strings.Cut(place, ">")
			if found {
				slot.Building = strings.TrimSpace(building)
				slot.Room = strings.TrimSpace(room)
			} else {
				slot.Room = strings.TrimSpace(place)
			}
			slot.RoomType = roomTypes[roomCell.AttrOr("data-type", "")]
		}
		d.Slots = append(d.Slots, slot)
	})
	return d, parseErr
}

// TurnStudents parses a turn's student listing.
func TurnStudents(doc *goquery.Document) []StudentRow {
	var rows []StudentRow
	doc.Find("table#turn-students tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		link := tr.Find("a")
		id := linkID(link, "student")
		if id == 0 || cells.Length() < 3 {
			return
		}
		rows = append(rows, StudentRow{
			ID:           id,
			Name:         cellText(link),
			Abbreviation: cellText(cells.Eq(1)),
			CourseAbbr:   cellText(cells.Eq(2)),
		})
	})
	return rows
}
