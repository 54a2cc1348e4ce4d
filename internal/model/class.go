package model

import "strings"

// JobClass is a category of work with its own queue and processor loop.
type JobClass string

const (
	ClassPayments   JobClass = "payments"
	ClassImages     JobClass = "images"
	ClassMenuImport JobClass = "menu_import"
)

// JobClasses lists every known class in a stable order.
var JobClasses = []JobClass{ClassPayments, ClassImages, ClassMenuImport}

// String returns the string representation of the class.
func (c JobClass) String() string {
	return string(c)
}

// IsValid checks whether the class is a known value.
func (c JobClass) IsValid() bool {
	switch c {
	case ClassPayments, ClassImages, ClassMenuImport:
		return true
	}
	return false
}

// ParseJobClass accepts the class name in either "menu_import" or
// "menu-import" form.
func ParseJobClass(s string) (JobClass, bool) {
	c := JobClass(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	return c, c.IsValid()
}

// ClassFor returns the job class that processes the given event type.
// Types are routed by their dotted prefix so that new payment or image
// event types land on the right queue without a table change.
func ClassFor(eventType string) (JobClass, bool) {
	prefix, _, _ := strings.Cut(eventType, ".")
	switch prefix {
	case "payment":
		return ClassPayments, true
	case "image":
		return ClassImages, true
	case "menu":
		return ClassMenuImport, true
	}
	return "", false
}
