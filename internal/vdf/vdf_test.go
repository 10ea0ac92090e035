package vdf

import "testing"

const sample = `
"appinfo"
{
	// a comment
	"depots"
	{
		"2347771"
		{
			"manifests"
			{
				"public"
				{
					"gid"		"9071851182114336641"
				}
			}
			"encryptedmanifests"
			{
				"beta"
				{
					"gid" "123"
				}
			}
		}
	}
}
`

func TestParse(t *testing.T) {
	root, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	gid, ok := root.Get("appinfo", "depots", "2347771", "manifests", "public", "gid")
	if !ok {
		t.Fatal("expected to find gid node")
	}
	v, ok := gid.Int()
	if !ok || v != 9071851182114336641 {
		t.Fatalf("got %v, %v, want 9071851182114336641, true", v, ok)
	}

	if _, ok := root.Get("appinfo", "depots", "nonexistent"); ok {
		t.Fatal("expected missing path to fail")
	}
}

func TestParse_CaseInsensitiveGet(t *testing.T) {
	root, err := Parse([]byte(`"Foo" "bar"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := root.Get("foo"); !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		`"key" "unterminated`,
		`"key" { "nested" "value"`,
		`"key" `,
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Errorf("expected error for input %q", c)
		}
	}
}

func TestNode_Bool(t *testing.T) {
	root, err := Parse([]byte(`"encrypted" "1" "plain" "0"`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	enc, _ := root.Get("encrypted")
	if !enc.Bool() {
		t.Fatal("expected encrypted to be true")
	}
	plain, _ := root.Get("plain")
	if plain.Bool() {
		t.Fatal("expected plain to be false")
	}
}
