package model

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const NonFieldErrors = "non_field_errors"

const (
	msgRequired = "This field is required."
	msgBlank    = "This field may not be blank."
	msgNull     = "This field may not be null."
)

// ValidationErrors collects field-level messages keyed by input field name.
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

func (v ValidationErrors) Has(field string) bool {
	return len(v[field]) > 0
}

// Err returns nil when nothing was collected so callers can return it directly.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(v[f], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Nullable tracks whether a nullable field was present in the payload and
// whether it carried null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func maxLength(errs ValidationErrors, field string, s *string, n int) {
	if s != nil && len([]rune(*s)) > n {
		errs.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", n))
	}
}

func requiredText(errs ValidationErrors, field string, s *string, partial bool) {
	if s == nil {
		if !partial {
			errs.Add(field, msgRequired)
		}
		return
	}
	if strings.TrimSpace(*s) == "" {
		errs.Add(field, msgBlank)
	}
}

type AuthorInput struct {
	Name *string
}

func DecodeAuthorInput(raw map[string]json.RawMessage) (AuthorInput, ValidationErrors) {
	errs := ValidationErrors{}
	// books is a read-only nested relation and is ignored on input.
	return AuthorInput{Name: decodeString(raw, "name", errs)}, errs
}

func (in AuthorInput) Validate(partial bool) ValidationErrors {
	errs := ValidationErrors{}
	requiredText(errs, "name", in.Name, partial)
	maxLength(errs, "name", in.Name, 100)
	return errs
}

func (in AuthorInput) ApplyTo(a *Author) {
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
}

type BookInput struct {
	Title           *string
	PublicationYear *int
	Author          *int64
	PublishedDate   Nullable[Date]
	ISBN            *string
	Pages           Nullable[int]
}

func DecodeBookInput(raw map[string]json.RawMessage) (BookInput, ValidationErrors) {
	errs := ValidationErrors{}
	in := BookInput{
		Title:           decodeString(raw, "title", errs),
		PublicationYear: decodeInt(raw, "publication_year", errs),
		Author:          decodeID(raw, "author", errs),
		PublishedDate:   decodeNullableDate(raw, "published_date", errs),
		ISBN:            decodeString(raw, "isbn", errs),
		Pages:           decodeNullableInt(raw, "pages", errs),
	}
	return in, errs
}

// Validate checks the payload against the catalog rules. The publication year
// ceiling is taken from now so it moves with the calendar.
func (in BookInput) Validate(partial bool, now time.Time) ValidationErrors {
	errs := ValidationErrors{}
	requiredText(errs, "title", in.Title, partial)
	maxLength(errs, "title", in.Title, 200)

	switch {
	case in.PublicationYear == nil:
		if !partial {
			errs.Add("publication_year", msgRequired)
		}
	case *in.PublicationYear < math.MinInt32:
		errs.Add("publication_year", fmt.Sprintf("Ensure this value is greater than or equal to %d.", math.MinInt32))
	case *in.PublicationYear > now.Year():
		errs.Add("publication_year", "Publication year cannot be in the future.")
	}

	switch {
	case in.Author == nil:
		if !partial {
			errs.Add("author", msgRequired)
		}
	case *in.Author <= 0:
		errs.Add("author", InvalidPK(*in.Author))
	}

	maxLength(errs, "isbn", in.ISBN, 13)
	if p := in.Pages.Value; p != nil {
		switch {
		case *p < 0:
			errs.Add("pages", "Ensure this value is greater than or equal to 0.")
		case *p > math.MaxInt32:
			errs.Add("pages", fmt.Sprintf("Ensure this value is less than or equal to %d.", math.MaxInt32))
		}
	}
	return errs
}

func (in BookInput) ApplyTo(b *Book) {
	if in.Title != nil {
		b.Title = strings.TrimSpace(*in.Title)
	}
	if in.PublicationYear != nil {
		b.PublicationYear = *in.PublicationYear
	}
	if in.Author != nil {
		b.AuthorID = *in.Author
	}
	if in.PublishedDate.Set {
		b.PublishedDate = in.PublishedDate.Value
	}
	if in.ISBN != nil {
		b.ISBN = strings.TrimSpace(*in.ISBN)
	}
	if in.Pages.Set {
		b.Pages = in.Pages.Value
	}
}

func InvalidPK(id int64) string {
	return fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id)
}

// PostInput carries only the writable post fields; author and
// published_date are assigned by the server.
type PostInput struct {
	Title   *string
	Content *string
}

func DecodePostInput(raw map[string]json.RawMessage) (PostInput, ValidationErrors) {
	errs := ValidationErrors{}
	return PostInput{
		Title:   decodeString(raw, "title", errs),
		Content: decodeString(raw, "content", errs),
	}, errs
}

func (in PostInput) Validate(partial bool) ValidationErrors {
	errs := ValidationErrors{}
	requiredText(errs, "title", in.Title, partial)
	maxLength(errs, "title", in.Title, 200)
	requiredText(errs, "content", in.Content, partial)
	return errs
}

func (in PostInput) ApplyTo(p *Post) {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		p.Content = *in.Content
	}
}

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type RegisterInput struct {
	Username  string
	Email     string
	Password1 string
	Password2 string
}

// Validate runs the stateless registration checks. Username and email
// uniqueness need the user table and are checked by the store.
func (in RegisterInput) Validate() ValidationErrors {
	errs := ValidationErrors{}
	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		errs.Add("username", msgRequired)
	case len([]rune(username)) > 150:
		errs.Add("username", "Ensure this value has at most 150 characters.")
	case !usernamePattern.MatchString(username):
		errs.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}

	if strings.TrimSpace(in.Email) == "" {
		errs.Add("email", msgRequired)
	} else if _, ok := NormalizeEmail(in.Email); !ok {
		errs.Add("email", "Enter a valid email address.")
	}

	if in.Password1 == "" {
		errs.Add("password1", msgRequired)
	}
	if in.Password2 == "" {
		errs.Add("password2", msgRequired)
	}
	if in.Password1 == "" || in.Password2 == "" {
		return errs
	}
	if in.Password1 != in.Password2 {
		errs.Add("password2", "The two password fields didn't match.")
		return errs
	}
	for _, msg := range PasswordProblems(in.Password2, username) {
		errs.Add("password2", msg)
	}
	return errs
}

// PasswordProblems lists the reasons a password is rejected, if any.
func PasswordProblems(password, username string) []string {
	var problems []string
	lowered := strings.ToLower(password)
	user := strings.ToLower(username)
	if user != "" && len(user) >= 3 && (strings.Contains(lowered, user) || strings.Contains(user, lowered)) {
		problems = append(problems, "The password is too similar to the username.")
	}
	if len([]rune(password)) < 8 {
		problems = append(problems, "This password is too short. It must contain at least 8 characters.")
	}
	if isAllDigits(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeEmail trims the address and lowercases its domain part.
func NormalizeEmail(email string) (string, bool) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	at := strings.LastIndex(email, "@")
	return email[:at] + "@" + strings.ToLower(email[at+1:]), true
}

type ProfileInput struct {
	Bio    *string
	Avatar *string
	Email  *string
}

func (in ProfileInput) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if in.Email != nil {
		if _, ok := NormalizeEmail(*in.Email); !ok {
			errs.Add("email", "Enter a valid email address.")
		}
	}
	maxLength(errs, "avatar", in.Avatar, 255)
	return errs
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

// isBlankOrNull also accepts an empty string, which is how an HTML form
// submits a nullable field left empty.
func isBlankOrNull(v json.RawMessage) bool {
	if isNull(v) {
		return true
	}
	var s string
	return json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) == ""
}

func decodeString(raw map[string]json.RawMessage, key string, errs ValidationErrors) *string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if isNull(v) {
		errs.Add(key, msgNull)
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		errs.Add(key, "Not a valid string.")
		return nil
	}
	return &s
}

func parseInt(v json.RawMessage) (int64, bool) {
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

func decodeInt(raw map[string]json.RawMessage, key string, errs ValidationErrors) *int {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if isNull(v) {
		errs.Add(key, msgNull)
		return nil
	}
	n, ok := parseInt(v)
	if !ok {
		errs.Add(key, "A valid integer is required.")
		return nil
	}
	i := int(n)
	return &i
}

func decodeID(raw map[string]json.RawMessage, key string, errs ValidationErrors) *int64 {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if isNull(v) {
		errs.Add(key, msgNull)
		return nil
	}
	n, ok := parseInt(v)
	if !ok {
		errs.Add(key, "Incorrect type. Expected pk value.")
		return nil
	}
	return &n
}

func decodeNullableInt(raw map[string]json.RawMessage, key string, errs ValidationErrors) Nullable[int] {
	v, ok := raw[key]
	if !ok {
		return Nullable[int]{}
	}
	if isBlankOrNull(v) {
		return Nullable[int]{Set: true}
	}
	n, ok := parseInt(v)
	if !ok {
		errs.Add(key, "A valid integer is required.")
		return Nullable[int]{}
	}
	i := int(n)
	return Nullable[int]{Set: true, Value: &i}
}

func decodeNullableDate(raw map[string]json.RawMessage, key string, errs ValidationErrors) Nullable[Date] {
	v, ok := raw[key]
	if !ok {
		return Nullable[Date]{}
	}
	if isBlankOrNull(v) {
		return Nullable[Date]{Set: true}
	}
	var d Date
	if err := json.Unmarshal(v, &d); err != nil {
		errs.Add(key, "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		return Nullable[Date]{}
	}
	return Nullable[Date]{Set: true, Value: &d}
}
