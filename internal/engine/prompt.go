package engine

import (
	"fmt"

	"github.com/grovekit/grove/internal/domain"
)

// BuildPrompt composes the task prompt sent to the agent. The prompt
// names the project and working directory and instructs the agent to
// write its result to the job's output file.
func BuildPrompt(project *domain.Project, kind domain.CommandKind, argument, workingDir, outputPath string) string {
	return fmt.Sprintf(`Project: %s
Repository: %s
Working Directory: %s

%s: %s

Write the output in %s`,
		project.Name, project.RepoURL, workingDir, promptLabel(kind), argument, outputPath)
}

func promptLabel(kind domain.CommandKind) string {
	switch kind {
	case domain.CommandAsk:
		return "Query"
	case domain.CommandFeedback:
		return "Feedback"
	case domain.CommandFeat, domain.CommandFix, domain.CommandPlan, domain.CommandInit:
		return "Task"
	}
	return "Task"
}
