package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grovekit/grove/internal/domain"
)

func TestBuildPrompt(t *testing.T) {
	project := &domain.Project{
		Name:    "proj-a",
		RepoURL: "https://example.com/proj-a.git",
	}

	prompt := BuildPrompt(project, domain.CommandFeat, "add login page", "/tmp/wt/abcd1234", "/tmp/out/output_abcd1234.txt")

	assert.Contains(t, prompt, "Project: proj-a")
	assert.Contains(t, prompt, "Repository: https://example.com/proj-a.git")
	assert.Contains(t, prompt, "Working Directory: /tmp/wt/abcd1234")
	assert.Contains(t, prompt, "Task: add login page")
	assert.Contains(t, prompt, "Write the output in /tmp/out/output_abcd1234.txt")
}

func TestPromptLabelPerKind(t *testing.T) {
	assert.Equal(t, "Query", promptLabel(domain.CommandAsk))
	assert.Equal(t, "Feedback", promptLabel(domain.CommandFeedback))
	assert.Equal(t, "Task", promptLabel(domain.CommandFeat))
	assert.Equal(t, "Task", promptLabel(domain.CommandFix))
	assert.Equal(t, "Task", promptLabel(domain.CommandPlan))
	assert.Equal(t, "Task", promptLabel(domain.CommandInit))
}
