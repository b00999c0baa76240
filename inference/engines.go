// Package inference - Inference engine interface and implementations
package inference

// EngineType is the type of the engine
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library
	EngineONNX EngineType = "onnx"
	// EngineOpenCV is the OpenCV DNN engine that uses the gocv bindings
	EngineOpenCV EngineType = "opencv"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineONNX, EngineOpenCV}

// ParseEngineType maps a configuration string to an EngineType.
func ParseEngineType(s string) (EngineType, bool) {
	for _, e := range Engines {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}
