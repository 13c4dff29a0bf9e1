package compile

import "fmt"

// FileURL builds the client-facing path of an output file. The user and
// build segments are present only when the ids are.
func FileURL(projectID, userID, buildID, file string) string {
	switch {
	case userID != "" && buildID != "":
		return fmt.Sprintf("/project/%s/user/%s/build/%s/output/%s", projectID, userID, buildID, file)
	case userID != "":
		return fmt.Sprintf("/project/%s/user/%s/output/%s", projectID, userID, file)
	case buildID != "":
		return fmt.Sprintf("/project/%s/build/%s/output/%s", projectID, buildID, file)
	default:
		return fmt.Sprintf("/project/%s/output/%s", projectID, file)
	}
}
