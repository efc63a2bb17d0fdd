package graph

import "testing"

func TestListenerEventID(t *testing.T) {
	id, ok := listenerEventID("event.listener.e1")
	if !ok || id != "e1" {
		t.Errorf("listenerEventID() = (%q, %v), want (e1, true)", id, ok)
	}

	if _, ok := listenerEventID("event.trigger.e1"); ok {
		t.Error("listenerEventID() matched a non-listener definition id")
	}
	if _, ok := listenerEventID("variable.get.v1"); ok {
		t.Error("listenerEventID() matched a variable definition id")
	}
}

func TestNewSynthDefinitionsBuildsOneOfEachPerDeclaration(t *testing.T) {
	g := GraphData{
		Variables: []GraphVariable{{ID: "v1", Name: "counter", TypeName: "number"}},
		Events:    []GraphEvent{{ID: "e1", Name: "Ping"}},
	}
	defs := newSynthDefinitions(g)

	for _, id := range []string{"variable.get.v1", "variable.set.v1", "event.listener.e1", "event.trigger.e1"} {
		if _, ok := defs[id]; !ok {
			t.Errorf("missing synthetic definition %q", id)
		}
	}
	if len(defs) != 4 {
		t.Errorf("len(defs) = %d, want 4", len(defs))
	}
}

func TestVariableGetDefinitionShape(t *testing.T) {
	defs := newSynthDefinitions(GraphData{Variables: []GraphVariable{{ID: "v1", Name: "counter", TypeName: "number"}}})
	def := defs["variable.get.v1"]

	if def.Callable || def.ExecInit {
		t.Error("variable.get should have no execution sockets")
	}
	if _, ok := findSocket(def.OutputTemplates, "Value"); !ok {
		t.Error("variable.get missing Value output")
	}
}

func TestVariableSetDefinitionShape(t *testing.T) {
	defs := newSynthDefinitions(GraphData{Variables: []GraphVariable{{ID: "v1", Name: "counter", TypeName: "number"}}})
	def := defs["variable.set.v1"]

	if !def.Callable {
		t.Error("variable.set should be callable")
	}
	if _, ok := findSocket(def.InputTemplates, "Value"); !ok {
		t.Error("variable.set missing Value input")
	}
	if _, ok := findSocket(def.OutputTemplates, "Value"); !ok {
		t.Error("variable.set missing passthrough Value output")
	}
}

func TestEventListenerDefinitionIsExecInitShaped(t *testing.T) {
	defs := newSynthDefinitions(GraphData{Events: []GraphEvent{{ID: "e1", Name: "Ping"}}})
	def := defs["event.listener.e1"]
	if !def.ExecInit {
		t.Error("event.listener should be ExecInit-shaped")
	}
	if _, ok := findSocket(def.InputTemplates, "Enter"); ok {
		t.Error("event.listener should have no Enter socket")
	}
}
