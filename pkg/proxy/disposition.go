package proxy

import (
	"mime"
	"regexp"
)

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{Nd}]`)

// SafeProjectName replaces every rune that is not a Unicode letter or
// decimal digit with an underscore.
//
//	SafeProjectName("My Thesis (v2)") == "My_Thesis__v2_"
func SafeProjectName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ContentDisposition returns the Content-Disposition value for a project
// PDF download. popupDownload selects attachment over inline.
func ContentDisposition(popupDownload bool, projectName string) string {
	disposition := "inline"
	if popupDownload {
		disposition = "attachment"
	}
	return mime.FormatMediaType(disposition, map[string]string{
		"filename": SafeProjectName(projectName) + ".pdf",
	})
}
