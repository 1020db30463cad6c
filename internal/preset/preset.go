// Package preset holds declarative connection presets and resolves them
// against the graph mirror.
//
// A rule names its endpoints by node and port name rather than id, so a
// preset survives service restarts where every id changes. Presets are
// stored as HCL files in a presets directory, one preset block per file:
//
//	preset "studio" {
//	  connection {
//	    output_node = "mic"
//	    output_port = "capture_FL"
//	    input_node  = "recorder"
//	    input_port  = "in_FL"
//	  }
//	}
package preset

// Rule is one declarative connection, resolved by name at evaluation time.
type Rule struct {
	OutputNode string `hcl:"output_node"`
	OutputPort string `hcl:"output_port"`
	InputNode  string `hcl:"input_node"`
	InputPort  string `hcl:"input_port"`
}

// Preset is a named, ordered list of rules.
type Preset struct {
	Name  string
	Rules []Rule
}
