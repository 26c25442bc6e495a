package ingress

import "testing"

func TestSpaceTopicNaming(t *testing.T) {
	if got := spaceTopic("demo"); got != "tilecanvas/tips/demo" {
		t.Fatalf("unexpected topic name: %s", got)
	}
}
