package flow

// branchMessages holds the progress wording of each branch.
type branchMessages struct {
	start string
	done  string
}

var messages = map[BranchID]branchMessages{
	BranchGreeting: {
		start: "preparing welcome message",
		done:  "welcome message ready",
	},
	BranchCode: {
		start: "analyzing source code",
		done:  "code analysis complete",
	},
	BranchArtefact: {
		start: "categorizing technology artefacts",
		done:  "report ready",
	},
}

func routedMessage(b BranchID) string {
	return "routing to " + string(b) + " branch"
}
