package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/softlyplease/soft-compute-gateway/pkg/params"
)

// Cache lifetimes per operation.
const (
	GeometryAnalysisTTL           = time.Hour
	ParameterOptimizationTTL      = 2 * time.Hour
	NaturalLanguageConversionTTL  = 30 * time.Minute
	ErrorDiagnosisTTL             = time.Hour
	PerformanceRecommendationsTTL = 2 * time.Hour
)

// Prompt excerpts are truncated to keep requests bounded.
const (
	maxGeometryExcerpt  = 1000
	maxDiagnosisExcerpt = 500
	maxOperationsListed = 100
)

// GeometryAnalysisRequest asks for an analysis of geometry data.
type GeometryAnalysisRequest struct {
	GeometryData string         `json:"geometryData"`
	AnalysisType string         `json:"analysisType"`
	Context      map[string]any `json:"context,omitempty"`
}

// AnalyzeGeometry analyzes geometry with the analysis profile.
func (s *Service) AnalyzeGeometry(ctx context.Context, req GeometryAnalysisRequest) (*Result, error) {
	if req.GeometryData == "" || req.AnalysisType == "" {
		return nil, params.Invalid("geometryData", "Missing required parameters: geometryData and analysisType")
	}

	prompt := fmt.Sprintf(`Perform a comprehensive %s analysis on the provided geometry data.

Geometry Data: %s
Context: %s

Respond with a JSON object with the fields:
mathematicalAnalysis, computationalComplexity, optimizationRecommendations,
potentialIssues, performanceImplications, recommendedOperations (array of
operation names) and confidence (0 to 1).`,
		req.AnalysisType, excerpt(req.GeometryData, maxGeometryExcerpt), jsonString(req.Context))

	return s.complete(ctx, OpGeometryAnalysis, "analysis", AnalysisProfile, prompt, req, GeometryAnalysisTTL)
}

// ParameterOptimizationRequest asks for optimization parameters.
type ParameterOptimizationRequest struct {
	GeometryType     string         `json:"geometryType"`
	OptimizationGoal string         `json:"optimizationGoal"`
	Constraints      map[string]any `json:"constraints,omitempty"`
}

// OptimizeParameters proposes optimization parameters with the reasoning
// profile.
func (s *Service) OptimizeParameters(ctx context.Context, req ParameterOptimizationRequest) (*Result, error) {
	if req.GeometryType == "" || req.OptimizationGoal == "" {
		return nil, params.Invalid("geometryType", "Missing required parameters: geometryType and optimizationGoal")
	}

	prompt := fmt.Sprintf(`Optimize parameters for %s geometry with goal: %s

Constraints: %s

Available algorithms:
- BESO (Bi-directional Evolutionary Structural Optimization)
- Level Set Optimization
- Multi-Objective Optimization
- Adaptive Mesh Optimization
- Stress-Based Optimization
- Frequency-Based Optimization

Respond with a JSON object with the fields:
algorithmSelection, optimalParameters (volumeFraction, penaltyFactor,
filterRadius, convergenceCriteria), expectedPerformance, convergenceAnalysis,
riskAssessment, alternativeParameters (array of {scenario, params}) and
confidence (0 to 1).`,
		req.GeometryType, req.OptimizationGoal, jsonString(req.Constraints))

	return s.complete(ctx, OpParameterOptimization, "optimization", ReasoningProfile, prompt, req, ParameterOptimizationTTL)
}

// NaturalLanguageRequest asks to map a request to a compute operation.
type NaturalLanguageRequest struct {
	UserRequest         string   `json:"userRequest"`
	AvailableOperations []string `json:"availableOperations,omitempty"`
}

// NaturalLanguageToOperation converts a natural language request into a
// compute operation with the multimodal profile.
func (s *Service) NaturalLanguageToOperation(ctx context.Context, req NaturalLanguageRequest) (*Result, error) {
	if req.UserRequest == "" {
		return nil, params.Invalid("userRequest", "Missing required parameter: userRequest")
	}

	ops := req.AvailableOperations
	if len(ops) > maxOperationsListed {
		ops = ops[:maxOperationsListed]
	}

	prompt := fmt.Sprintf(`Convert this natural language request to a specific Rhino Compute operation:

User Request: %q

Available Operations: %s

Respond with a JSON object with the fields:
operation, parameters (object), reasoning, alternativeOperations (array),
expectedInput, expectedOutput, performanceConsiderations, errorHandling and
confidence (0 to 1).`,
		req.UserRequest, jsonString(ops))

	return s.complete(ctx, OpNaturalLanguageConversion, "conversion", MultimodalProfile, prompt, req, NaturalLanguageConversionTTL)
}

// ErrorDiagnosisRequest asks for the diagnosis of a failed operation.
type ErrorDiagnosisRequest struct {
	ErrorMessage     string         `json:"errorMessage"`
	OperationContext map[string]any `json:"operationContext,omitempty"`
	GeometryData     string         `json:"geometryData,omitempty"`
}

// DiagnoseError diagnoses an operation failure with the diagnosis profile.
func (s *Service) DiagnoseError(ctx context.Context, req ErrorDiagnosisRequest) (*Result, error) {
	if req.ErrorMessage == "" {
		return nil, params.Invalid("errorMessage", "Missing required parameter: errorMessage")
	}

	geometry := "Not provided"
	if req.GeometryData != "" {
		geometry = excerpt(req.GeometryData, maxDiagnosisExcerpt)
	}

	prompt := fmt.Sprintf(`Diagnose and resolve this Rhino Compute error:

Error: %s
Operation Context: %s
Geometry Data: %s

Respond with a JSON object with the fields:
rootCause, resolutionSteps (array), alternativeApproaches (array),
preventionStrategies (array), performanceImpact, debuggingSteps (array),
severity (high, medium or low) and confidence (0 to 1).`,
		req.ErrorMessage, jsonString(req.OperationContext), geometry)

	return s.complete(ctx, OpErrorDiagnosis, "diagnosis", DiagnosisProfile, prompt, req, ErrorDiagnosisTTL)
}

// PerformanceRequest asks for recommendations based on past operations.
type PerformanceRequest struct {
	OperationHistory json.RawMessage `json:"operationHistory"`
	CurrentMetrics   json.RawMessage `json:"currentMetrics"`
}

// PerformanceRecommendations analyzes operation history with the
// multimodal profile.
func (s *Service) PerformanceRecommendations(ctx context.Context, req PerformanceRequest) (*Result, error) {
	if isEmptyJSON(req.OperationHistory) || isEmptyJSON(req.CurrentMetrics) {
		return nil, params.Invalid("operationHistory", "Missing required parameters: operationHistory and currentMetrics")
	}

	prompt := fmt.Sprintf(`Analyze performance and provide optimization recommendations:

Operation History: %s
Current Metrics: %s

Respond with a JSON object with the fields:
bottlenecks, optimizationStrategies (array), resourceUtilization,
cachingStrategy, algorithmImprovements (array), infrastructureScaling,
expectedImprovements, implementationPriority (high, medium or low) and
confidence (0 to 1).`,
		req.OperationHistory, req.CurrentMetrics)

	return s.complete(ctx, OpPerformanceRecommendations, "recommendations", MultimodalProfile, prompt, req, PerformanceRecommendationsTTL)
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func jsonString(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := string(raw)
	return s == "" || s == "null"
}
