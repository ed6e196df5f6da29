package syncer

import "strings"

// Document layout per user:
//
//	users/{u}/playerStats/main
//	users/{u}/objectives/{objectiveId}
//	users/{u}/objectives/{objectiveId}/subtasks/{subtaskId}
const (
	usersCollection      = "users"
	statsCollection      = "playerStats"
	statsDocID           = "main"
	objectivesCollection = "objectives"
	subtasksCollection   = "subtasks"
)

func UserRoot(user string) string { return usersCollection + "/" + user }

func StatsPath(user string) string {
	return UserRoot(user) + "/" + statsCollection + "/" + statsDocID
}

func ObjectivesPath(user string) string {
	return UserRoot(user) + "/" + objectivesCollection
}

func ObjectivePath(user, objectiveID string) string {
	return ObjectivesPath(user) + "/" + objectiveID
}

func SubtasksPath(user, objectiveID string) string {
	return ObjectivePath(user, objectiveID) + "/" + subtasksCollection
}

func SubtaskPath(user, objectiveID, subtaskID string) string {
	return SubtasksPath(user, objectiveID) + "/" + subtaskID
}

// parsePath classifies a document path below the user's root.
func parsePath(user, path string) (kind Kind, objectiveID, subtaskID string, ok bool) {
	rest, found := strings.CutPrefix(path, UserRoot(user)+"/")
	if !found {
		return 0, "", "", false
	}
	segs := strings.Split(rest, "/")
	switch {
	case len(segs) == 2 && segs[0] == statsCollection && segs[1] == statsDocID:
		return KindStats, "", "", true
	case len(segs) == 2 && segs[0] == objectivesCollection:
		return KindObjective, segs[1], "", true
	case len(segs) == 4 && segs[0] == objectivesCollection && segs[2] == subtasksCollection:
		return KindSubtask, segs[1], segs[3], true
	}
	return 0, "", "", false
}
