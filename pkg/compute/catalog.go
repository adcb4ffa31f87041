package compute

import (
	"sort"
	"strings"
)

// Operation types. Per-type counters are recorded as "compute.<type>".
const (
	TypeNurbs         = "nurbs"
	TypeMesh          = "mesh"
	TypeSubD          = "subd"
	TypePointCloud    = "pointcloud"
	TypeTransform     = "transform"
	TypeAnalysis      = "analysis"
	TypeOptimization  = "optimization"
	TypeRendering     = "rendering"
	TypeFileIO        = "fileIO"
	TypeComputePlugin = "computePlugin"
	TypeGeneric       = "generic"
)

// GenericEndpoint is used for operations without a dedicated compute path.
const GenericEndpoint = "geometry/generic"

// Catalog lists the operations the compute service advertises, by
// category and group.
var Catalog = map[string]map[string][]string{
	"geometry": {
		"nurbsCurve": {
			"CreateNurbsCurve", "InterpolateCurve", "FitCurve", "RebuildCurve", "SimplifyCurve",
			"OffsetCurve", "ExtendCurve", "JoinCurves", "SplitCurve", "CurveBoolean",
			"CreateArc", "CreateCircle", "CreateEllipse", "CreateLine", "CreatePolyline",
			"CreateBezier", "CreateSpline", "CreateHelix", "CreateSpiral", "CreateTextCurve",
		},
		"nurbsSurface": {
			"CreateNurbsSurface", "LoftSurface", "SweepSurface", "RevolveSurface", "NetworkSurface",
			"PatchSurface", "ExtendSurface", "SplitSurface", "JoinSurfaces", "SurfaceBoolean",
			"CreatePlaneSurface", "CreateCylinderSurface", "CreateConeSurface", "CreateSphereSurface",
			"CreateTorusSurface", "CreatePipeSurface", "CreateBlendSurface", "CreateFilletSurface",
			"CreateChamferSurface", "CreateOffsetSurface", "CreateRuledSurface", "CreateDevelopableSurface",
		},
		"brep": {
			"CreateBrep", "BrepBoolean", "BrepSplit", "BrepJoin", "BrepCap", "BrepOffset",
			"BrepFillet", "BrepChamfer", "BrepShell", "BrepThicken", "BrepExtrude", "BrepRevolve",
			"BrepSweep", "BrepLoft", "BrepBlend", "BrepFilletEdges", "BrepChamferEdges",
			"BrepOffsetFaces", "BrepExtractFaces", "BrepExtractEdges", "BrepExtractVertices",
		},
		"mesh": {
			"CreateMesh", "MeshBoolean", "MeshSplit", "MeshJoin", "MeshCap", "MeshOffset",
			"MeshFillet", "MeshChamfer", "MeshShell", "MeshThicken", "MeshSimplify", "MeshOptimize",
			"MeshRepair", "MeshSmooth", "MeshSubdivide", "MeshExtrude", "MeshRevolve", "MeshSweep",
			"MeshLoft", "MeshBlend", "MeshFilletEdges", "MeshChamferEdges", "MeshOffsetFaces",
			"MeshExtractFaces", "MeshExtractEdges", "MeshExtractVertices", "MeshWeld", "MeshUnweld",
			"MeshCollapse", "MeshSplitFaces", "MeshJoinFaces", "MeshExtractConnectedComponents",
		},
		"meshAnalysis": {
			"MeshVolume", "MeshArea", "MeshCentroid", "MeshBoundingBox", "MeshNormals",
			"MeshCurvature", "MeshTopology", "MeshQuality", "MeshStatistics", "MeshVertexCurvatures",
			"MeshFaceCurvatures", "MeshGaussianCurvature", "MeshMeanCurvature", "MeshPrincipalCurvatures",
			"MeshGeodesicDistance", "MeshShortestPath", "MeshClosestPoint", "MeshRayIntersection",
			"MeshMeshIntersection", "MeshBrepIntersection", "MeshSurfaceIntersection", "MeshCurveIntersection",
		},
		"subd": {
			"CreateSubD", "SubDToMesh", "MeshToSubD", "SubDRefine", "SubDSmooth", "SubDEdit",
			"SubDJoin", "SubDSplit", "SubDOffset", "SubDShell", "SubDThicken", "SubDExtrude",
			"SubDRevolve", "SubDSweep", "SubDLoft", "SubDBlend", "SubDFillet", "SubDChamfer",
			"SubDOffsetFaces", "SubDExtractFaces", "SubDExtractEdges", "SubDExtractVertices",
		},
		"pointCloud": {
			"CreatePointCloud", "PointCloudFilter", "PointCloudSimplify", "PointCloudToMesh",
			"PointCloudStatistics", "PointCloudBoundingBox", "PointCloudNormals", "PointCloudCurvature",
			"PointCloudClosestPoint", "PointCloudRayIntersection", "PointCloudKNearestNeighbors",
			"PointCloudRadiusSearch", "PointCloudDensity", "PointCloudOutliers", "PointCloudRegistration",
		},
	},
	"transforms": {
		"transforms": {
			"Translate", "Rotate", "Scale", "Mirror", "Shear", "Project", "Orient", "Align",
			"Array", "Copy", "Move", "Transform", "ApplyTransformation", "InverseTransform",
			"LinearTransformation", "AffineTransformation", "ProjectiveTransformation", "SimilarityTransformation",
		},
	},
	"analysis": {
		"geometry": {
			"Area", "Volume", "Centroid", "BoundingBox", "Curvature", "GaussianCurvature",
			"MeanCurvature", "PrincipalCurvatures", "GeodesicDistance", "ShortestPath",
			"ClosestPoint", "Distance", "Angle", "Length", "Perimeter", "SurfaceArea",
			"MassProperties", "Inertia", "CenterOfMass", "RadiusOfGyration",
		},
		"intersection": {
			"CurveCurveIntersection", "CurveSurfaceIntersection", "SurfaceSurfaceIntersection",
			"MeshMeshIntersection", "BrepBrepIntersection", "RayIntersection", "ClosestPoint",
			"Distance", "Projection", "Intersection", "Union", "Difference", "XOR",
		},
		"optimization": {
			"TopologyOptimization", "MeshOptimization", "CurveOptimization", "SurfaceOptimization",
			"BrepOptimization", "SubDOptimization", "BESOOptimization", "LevelSetOptimization",
			"MultiObjectiveOptimization", "AdaptiveMeshOptimization", "StressBasedOptimization",
			"FrequencyBasedOptimization", "AdvancedSensitivityAnalysis",
		},
	},
	"rendering": {
		"rendering": {
			"RenderMesh", "RenderBrep", "RenderCurve", "RenderSurface", "RenderSubD",
			"RenderPointCloud", "RenderText", "RenderAnnotation", "RenderView", "RenderPerspective",
			"RenderOrthographic", "RenderIsometric", "RenderAxonometric", "RenderOblique",
			"RenderSection", "RenderExploded", "RenderTransparent", "RenderWireframe", "RenderShaded",
		},
	},
	"fileIO": {
		"fileIO": {
			"Read3dm", "Write3dm", "ReadMesh", "WriteMesh", "ReadCurve", "WriteCurve",
			"ReadSurface", "WriteSurface", "ReadBrep", "WriteBrep", "ReadSubD", "WriteSubD",
			"ReadPointCloud", "WritePointCloud", "ReadSTL", "WriteSTL", "ReadOBJ", "WriteOBJ",
			"ReadPLY", "WritePLY", "ReadSTEP", "WriteSTEP", "ReadIGES", "WriteIGES",
			"ReadDWG", "WriteDWG", "ReadDXF", "WriteDXF", "ReadFBX", "WriteFBX",
		},
	},
	"computePlugins": {
		"BooleanOperations": {
			"IntersectSolids", "UnionSolids", "SubtractSolids", "BooleanOperation",
			"ValidateGeometry", "GetBooleanStats",
		},
		"StressAnalyzer": {
			"AnalyzeStress", "AnalyzeGaussianCurvature", "AnalyzeMeanCurvature",
			"AnalyzePrincipalCurvatures", "GenerateStressVisualization", "GenerateStressColorMap",
		},
		"ViewCapture": {
			"CaptureLeftView", "CaptureRightView", "CaptureTopView", "CaptureBottomView",
			"CaptureFrontView", "CaptureBackView", "CaptureAxoView", "CaptureObliqueView",
		},
		"BoundingBoxCalculator": {
			"CalculateBoundingBox", "CalculateAlignedBoundingBox", "CalculateOrientedBoundingBox",
			"CalculateBoundingSphere", "CalculateBoundingCylinder", "CalculateBoundingCone",
		},
		"VolumeCalculator": {
			"CalculateVolume", "CalculateSurfaceArea", "CalculateMassProperties",
			"CalculateInertia", "CalculateCenterOfMass", "CalculateRadiusOfGyration",
		},
		"SurfaceOffsetter": {
			"OffsetSurface", "OffsetBrep", "OffsetMesh", "OffsetCurve", "OffsetSubD",
		},
		"CurveOffsetter": {
			"OffsetCurve", "OffsetPolyline", "OffsetArc", "OffsetCircle", "OffsetEllipse",
		},
		"SubdivisionPanelizer": {
			"SubdivideMesh", "SubdivideBrep", "SubdivideSurface", "SubdivideCurve",
			"GeneratePanels", "CreatePanelPattern", "ApplyPanelPattern",
		},
		"ObliqueView": {
			"CreateObliqueView", "CreateIsometricView", "CreateDimetricView", "CreateTrimetricView",
			"CreateCustomView", "CreateSectionView", "CreateDetailView",
		},
		"DwgExporter": {
			"ExportToDWG", "ExportToDXF", "ExportToPDF", "ExportToSVG", "ExportToImage",
		},
		"AdvancedTopologyOptimization": {
			"BESOOptimization", "LevelSetOptimization", "MultiObjectiveOptimization",
			"AdaptiveMeshOptimization", "StressBasedOptimization", "FrequencyBasedOptimization",
		},
	},
}

// typeOrder resolves operations listed in several groups; the first match wins.
var typeOrder = []struct {
	category, group, opType string
}{
	{"geometry", "nurbsCurve", TypeNurbs},
	{"geometry", "nurbsSurface", TypeNurbs},
	{"geometry", "brep", TypeNurbs},
	{"geometry", "mesh", TypeMesh},
	{"geometry", "subd", TypeSubD},
	{"geometry", "pointCloud", TypePointCloud},
	{"transforms", "transforms", TypeTransform},
	{"analysis", "optimization", TypeOptimization},
	{"analysis", "geometry", TypeAnalysis},
	{"analysis", "intersection", TypeAnalysis},
	{"geometry", "meshAnalysis", TypeAnalysis},
	{"rendering", "rendering", TypeRendering},
	{"fileIO", "fileIO", TypeFileIO},
}

var operationTypes = buildOperationTypes()

func buildOperationTypes() map[string]string {
	types := make(map[string]string)
	for _, t := range typeOrder {
		for _, op := range Catalog[t.category][t.group] {
			if _, seen := types[op]; !seen {
				types[op] = t.opType
			}
		}
	}
	return types
}

// TypeOf classifies an operation name. Plugin operations are written
// "Plugin.Operation".
func TypeOf(operation string) string {
	if t, ok := operationTypes[operation]; ok {
		return t
	}
	if strings.Contains(operation, ".") {
		return TypeComputePlugin
	}
	return TypeGeneric
}

// endpoints maps operations to compute paths (relative to /compute/).
var endpoints = map[string]string{
	"CreateNurbsCurve":   "geometry/nurbs/curve",
	"CreateNurbsSurface": "geometry/nurbs/surface",
	"CreateBrep":         "geometry/brep",
	"CreateMesh":         "geometry/mesh",
	"CreateSubD":         "geometry/subd",
	"CreatePointCloud":   "geometry/pointcloud",

	"MeshBoolean":   "mesh/boolean",
	"MeshSplit":     "mesh/split",
	"MeshJoin":      "mesh/join",
	"MeshSimplify":  "mesh/simplify",
	"MeshOptimize":  "mesh/optimize",
	"MeshRepair":    "mesh/repair",
	"MeshSmooth":    "mesh/smooth",
	"MeshSubdivide": "mesh/subdivide",

	"Area":         "analysis/area",
	"Volume":       "analysis/volume",
	"Centroid":     "analysis/centroid",
	"BoundingBox":  "analysis/boundingbox",
	"Curvature":    "analysis/curvature",
	"Intersection": "analysis/intersection",
	"ClosestPoint": "analysis/closestpoint",
	"Distance":     "analysis/distance",

	"TopologyOptimization":       "optimization/topology",
	"MeshOptimization":           "optimization/mesh",
	"CurveOptimization":          "optimization/curve",
	"SurfaceOptimization":        "optimization/surface",
	"BrepOptimization":           "optimization/brep",
	"SubDOptimization":           "optimization/subd",
	"BESOOptimization":           "optimization/beso",
	"LevelSetOptimization":       "optimization/levelset",
	"MultiObjectiveOptimization": "optimization/multiobjective",
	"AdaptiveMeshOptimization":   "optimization/adaptivemesh",
	"StressBasedOptimization":    "optimization/stressbased",
	"FrequencyBasedOptimization": "optimization/frequencybased",

	"Translate": "transform/translate",
	"Rotate":    "transform/rotate",
	"Scale":     "transform/scale",
	"Mirror":    "transform/mirror",
	"Project":   "transform/project",
	"Orient":    "transform/orient",
	"Align":     "transform/align",
	"Array":     "transform/array",
	"Copy":      "transform/copy",

	"RenderMesh":       "rendering/mesh",
	"RenderBrep":       "rendering/brep",
	"RenderCurve":      "rendering/curve",
	"RenderSurface":    "rendering/surface",
	"RenderSubD":       "rendering/subd",
	"RenderPointCloud": "rendering/pointcloud",

	"Read3dm":         "file/read3dm",
	"Write3dm":        "file/write3dm",
	"ReadMesh":        "file/readmesh",
	"WriteMesh":       "file/writemesh",
	"ReadCurve":       "file/readcurve",
	"WriteCurve":      "file/writecurve",
	"ReadSurface":     "file/readsurface",
	"WriteSurface":    "file/writesurface",
	"ReadBrep":        "file/readbrep",
	"WriteBrep":       "file/writebrep",
	"ReadSubD":        "file/readsubd",
	"WriteSubD":       "file/writesubd",
	"ReadPointCloud":  "file/readpointcloud",
	"WritePointCloud": "file/writepointcloud",

	"BooleanOperations.IntersectSolids":                       "compute/boolean/intersect",
	"BooleanOperations.UnionSolids":                           "compute/boolean/union",
	"BooleanOperations.SubtractSolids":                        "compute/boolean/subtract",
	"StressAnalyzer.AnalyzeStress":                            "compute/stress/analyze",
	"ViewCapture.CaptureLeftView":                             "compute/view/left",
	"ViewCapture.CaptureRightView":                            "compute/view/right",
	"ViewCapture.CaptureTopView":                              "compute/view/top",
	"ViewCapture.CaptureBottomView":                           "compute/view/bottom",
	"ViewCapture.CaptureFrontView":                            "compute/view/front",
	"ViewCapture.CaptureBackView":                             "compute/view/back",
	"ViewCapture.CaptureAxoView":                              "compute/view/axo",
	"ViewCapture.CaptureObliqueView":                          "compute/view/oblique",
	"BoundingBoxCalculator.CalculateBoundingBox":              "compute/boundingbox/calculate",
	"VolumeCalculator.CalculateVolume":                        "compute/volume/calculate",
	"SurfaceOffsetter.OffsetSurface":                          "compute/surface/offset",
	"CurveOffsetter.OffsetCurve":                              "compute/curve/offset",
	"SubdivisionPanelizer.SubdivideMesh":                      "compute/subdivision/subdivide",
	"ObliqueView.CreateObliqueView":                           "compute/oblique/create",
	"DwgExporter.ExportToDWG":                                 "compute/export/dwg",
	"AdvancedTopologyOptimization.BESOOptimization":           "compute/optimization/beso",
	"AdvancedTopologyOptimization.LevelSetOptimization":       "compute/optimization/levelset",
	"AdvancedTopologyOptimization.MultiObjectiveOptimization": "compute/optimization/multiobjective",
	"AdvancedTopologyOptimization.AdaptiveMeshOptimization":   "compute/optimization/adaptivemesh",
	"AdvancedTopologyOptimization.StressBasedOptimization":    "compute/optimization/stressbased",
	"AdvancedTopologyOptimization.FrequencyBasedOptimization": "compute/optimization/frequencybased",
}

// EndpointFor returns the compute path for an operation, falling back to
// GenericEndpoint.
func EndpointFor(operation string) string {
	if ep, ok := endpoints[operation]; ok {
		return ep
	}
	return GenericEndpoint
}

// Operations returns the catalog for one category, or the whole catalog
// for an empty or unknown category.
func Operations(category string) map[string][]string {
	if groups, ok := Catalog[category]; ok {
		return groups
	}
	all := make(map[string][]string)
	for cat, groups := range Catalog {
		for group, ops := range groups {
			all[cat+"."+group] = ops
		}
	}
	return all
}

// Categories returns the catalog category names, sorted.
func Categories() []string {
	names := make([]string, 0, len(Catalog))
	for name := range Catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary counts catalog operations per category and group.
func Summary() map[string]map[string]int {
	out := make(map[string]map[string]int, len(Catalog))
	for cat, groups := range Catalog {
		out[cat] = make(map[string]int, len(groups))
		for group, ops := range groups {
			out[cat][group] = len(ops)
		}
	}
	return out
}

// TotalOperations counts every catalog entry, duplicates across groups included.
func TotalOperations() int {
	total := 0
	for _, groups := range Catalog {
		for _, ops := range groups {
			total += len(ops)
		}
	}
	return total
}
