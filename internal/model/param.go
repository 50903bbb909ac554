package model

// ParamType is the closed set of parameter value kinds. Kept as an
// explicit tagged variant rather than derived from runtime introspection
// of the analysis engine.
type ParamType string

const (
	ParamStr   ParamType = "str"
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
	ParamBool  ParamType = "bool"
	ParamFile  ParamType = "file"
)

// ParameterDescriptor describes one parameter accepted by either the
// global (constructor-level) parameter set or a specific analysis method.
type ParameterDescriptor struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	IsList      bool      `json:"is_list"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// AnalysisMethod names a committable pipeline method.
type AnalysisMethod struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	InternalID  int    `json:"internal_id"`
	Desc        string `json:"desc,omitempty"`
}

// AnalysisMethods is the fixed registry of analysis methods the
// MetaKEGG engine exposes.
var AnalysisMethods = []AnalysisMethod{
	{Name: "single_input_genes", DisplayName: "Single Input Genes Analysis", InternalID: 1,
		Desc: "Perform the Single Input Analysis for Gene IDs."},
	{Name: "single_input_transcripts", DisplayName: "Single Input Transcripts Analysis", InternalID: 2,
		Desc: "Perform the Single Input Analysis for Transcript IDs."},
	{Name: "single_input_genes_bulk_mapping", DisplayName: "Single input genes bulk mapping Analysis", InternalID: 3,
		Desc: "Perform a single input analysis with bulk mapping for genes."},
	{Name: "multiple_inputs", DisplayName: "multiple inputs Analysis", InternalID: 4,
		Desc: "Perform the Multiple Inputs Analysis."},
	{Name: "single_input_with_methylation", DisplayName: "single input with methylation", InternalID: 5,
		Desc: "Perform Single Input Analysis with Methylation."},
	{Name: "single_input_with_methylation_quantification", DisplayName: "single input with methylation quantification Analysis", InternalID: 6,
		Desc: "Perform Single Input Analysis with methylation quantification."},
	{Name: "single_input_with_miRNA", DisplayName: "single input with miRNA Analysis", InternalID: 7,
		Desc: "Perform Single Input Analysis with miRNA."},
	{Name: "single_input_with_miRNA_quantification", DisplayName: "single input with miRNA quantification Analysis", InternalID: 8,
		Desc: "Perform Single Input Analysis with miRNA."},
	{Name: "single_input_with_methylation_and_miRNA", DisplayName: "single input with methylation and miRNA Analysis", InternalID: 9,
		Desc: "Perform Single Input Analysis with miRNA."},
}

// FindAnalysisMethod looks up a method by name.
func FindAnalysisMethod(name string) (AnalysisMethod, bool) {
	for _, m := range AnalysisMethods {
		if m.Name == name {
			return m, true
		}
	}
	return AnalysisMethod{}, false
}
