package project

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// BuildInfo describes the build setup detected in a project root
type BuildInfo struct {
	// Tool is "gradle" or "maven"
	Tool          string   `yaml:"tool" json:"tool"`
	ProjectName   string   `yaml:"project_name,omitempty" json:"project_name,omitempty"`
	KotlinVersion string   `yaml:"kotlin_version,omitempty" json:"kotlin_version,omitempty"`
	Frameworks    []string `yaml:"frameworks,omitempty" json:"frameworks,omitempty"`
	SourceRoots   []string `yaml:"source_roots,omitempty" json:"source_roots,omitempty"`
}

var (
	rootProjectName = regexp.MustCompile(`rootProject\.name\s*=\s*["']([^"']+)["']`)
	gradleKotlin    = regexp.MustCompile(`kotlin\(\s*"[a-z.]+"\s*\)\s*version\s*"([^"]+)"|org\.jetbrains\.kotlin[.\w-]*["']?\)?\s*version\s*["']([^"']+)["']`)
	mavenKotlin     = regexp.MustCompile(`<kotlin\.version>([^<]+)</kotlin\.version>`)
	mavenParent     = regexp.MustCompile(`(?s)<parent>.*?</parent>`)
	mavenArtifact   = regexp.MustCompile(`<artifactId>([^<]+)</artifactId>`)
)

var frameworkMarkers = map[string]string{
	"io.ktor":                 "ktor",
	"spring-boot":             "spring-boot",
	"org.springframework":     "spring",
	"com.android.application": "android",
	"com.android.library":     "android",
	"androidx.compose":        "compose",
	"org.jetbrains.compose":   "compose",
	"kotlinx-coroutines":      "coroutines",
	"kotlinx-serialization":   "serialization",
	"plugin.serialization":    "serialization",
	"io.micronaut":            "micronaut",
	"org.jetbrains.exposed":   "exposed",
	"com.google.dagger":       "dagger",
	"io.insert-koin":          "koin",
}

var candidateSourceRoots = []string{
	"src/main/kotlin",
	"src/test/kotlin",
	"src/main/java",
	"src/commonMain/kotlin",
	"app/src/main/kotlin",
	"app/src/main/java",
}

// DetectBuild inspects Gradle or Maven files in root. It returns nil when
// neither is present.
func DetectBuild(root string) *BuildInfo {
	if info := detectGradle(root); info != nil {
		return info
	}
	return detectMaven(root)
}

func detectGradle(root string) *BuildInfo {
	var content strings.Builder
	found := false
	for _, name := range []string{"build.gradle.kts", "build.gradle", "settings.gradle.kts", "settings.gradle", "app/build.gradle.kts", "app/build.gradle"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		found = true
		content.Write(data)
		content.WriteByte('\n')
	}
	if !found {
		return nil
	}

	text := content.String()
	info := &BuildInfo{Tool: "gradle"}
	if m := rootProjectName.FindStringSubmatch(text); m != nil {
		info.ProjectName = m[1]
	}
	if m := gradleKotlin.FindStringSubmatch(text); m != nil {
		info.KotlinVersion = m[1] + m[2]
	}
	info.Frameworks = detectFrameworks(text)
	info.SourceRoots = detectSourceRoots(root)
	return info
}

func detectMaven(root string) *BuildInfo {
	data, err := os.ReadFile(filepath.Join(root, "pom.xml"))
	if err != nil {
		return nil
	}

	text := string(data)
	info := &BuildInfo{Tool: "maven"}
	if m := mavenArtifact.FindStringSubmatch(mavenParent.ReplaceAllString(text, "")); m != nil {
		info.ProjectName = strings.TrimSpace(m[1])
	}
	if m := mavenKotlin.FindStringSubmatch(text); m != nil {
		info.KotlinVersion = strings.TrimSpace(m[1])
	}
	info.Frameworks = detectFrameworks(text)
	info.SourceRoots = detectSourceRoots(root)
	return info
}

func detectFrameworks(content string) []string {
	seen := make(map[string]bool)
	var frameworks []string
	for marker, name := range frameworkMarkers {
		if strings.Contains(content, marker) && !seen[name] {
			seen[name] = true
			frameworks = append(frameworks, name)
		}
	}
	sort.Strings(frameworks)
	return frameworks
}

func detectSourceRoots(root string) []string {
	var roots []string
	for _, dir := range candidateSourceRoots {
		if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir))); err == nil && info.IsDir() {
			roots = append(roots, dir)
		}
	}
	return roots
}
