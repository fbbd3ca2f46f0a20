package gemini

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSchemaBuilders(t *testing.T) {
	got := Obj(map[string]interface{}{
		"status":  Enum("PASS", "FAIL"),
		"reasons": Arr(Str()),
		"score":   Num(),
		"count":   Int(),
		"ok":      Bool(),
	}, "status", "ok")

	want := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status": map[string]interface{}{
				"type": "string",
				"enum": []string{"PASS", "FAIL"},
			},
			"reasons": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"score": map[string]interface{}{"type": "number"},
			"count": map[string]interface{}{"type": "integer"},
			"ok":    map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"status", "ok"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaDepthAccounting(t *testing.T) {
	flat := Obj(map[string]interface{}{"name": Str()})
	if depth := schemaMaxDepth(flat, 0); depth > schemaDepthLimit {
		t.Errorf("flat schema measured at depth %d", depth)
	}

	nested := Obj(map[string]interface{}{
		"plan": Obj(map[string]interface{}{
			"topology": Obj(map[string]interface{}{
				"class": Str(),
			}),
		}),
	})
	if depth := schemaMaxDepth(nested, 0); depth <= 3 {
		t.Errorf("nested schema measured at depth %d", depth)
	}
}

func TestShallowSchemaKeepsEnums(t *testing.T) {
	schema := Obj(map[string]interface{}{
		"action": Enum("MOUNT_MOTORS", "INSTALL_STACK"),
		"detail": Obj(map[string]interface{}{"text": Str()}),
	}, "action")

	flat := shallowSchema(schema)
	props := flat["properties"].(map[string]interface{})

	action := props["action"].(map[string]interface{})
	if _, ok := action["enum"]; !ok {
		t.Error("enum dropped by shallowing")
	}
	detail := props["detail"].(map[string]interface{})
	if _, ok := detail["properties"]; ok {
		t.Error("nested properties survived shallowing")
	}
}
