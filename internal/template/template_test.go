package template

import "testing"

func TestRender(t *testing.T) {
	lead := Lead{Username: "jdoe", Name: "Jane Doe", Bio: "coffee + code"}
	got := Render("Hey {{firstName}}, love your bio: {{bio}} ({{username}})", lead)
	want := "Hey Jane, love your bio: coffee + code (jdoe)"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderFirstNameFallsBackToUsername(t *testing.T) {
	lead := Lead{Username: "jdoe", Name: ""}
	got := Render("{{firstName}}", lead)
	if got != "jdoe" {
		t.Fatalf("Render() = %q, want jdoe", got)
	}
}

func TestRenderMissingFieldsAreEmpty(t *testing.T) {
	got := Render("[{{username}}][{{name}}][{{bio}}][{{firstName}}]", Lead{})
	if got != "[][][][]" {
		t.Fatalf("Render() = %q, want [][][][] ", got)
	}
}

func TestRenderNoTokens(t *testing.T) {
	got := Render("plain message, no tokens here", Lead{Username: "x"})
	if got != "plain message, no tokens here" {
		t.Fatalf("Render() = %q", got)
	}
}
