package step

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/logsink"
	"github.com/sathwikvintha/release-automation/internal/model"
)

const (
	staasSink = "staas"

	securityScript = "run_oscs_sonar_generic.sh"
	staasScript    = "run_staas_generic.sh"

	releaseConfigFile = "release_config.txt"
	emailConfigFile   = "email_config.txt"
)

// PipelineConfig configures the release pipeline step definitions.
type PipelineConfig struct {
	Config model.PipelineConfig
	Runner CommandRunner
	Dialer RemoteDialer
	// PrivateKey is the optional key for remote sessions without a password.
	PrivateKey []byte
	Logger     log.Logger
}

func (c *PipelineConfig) defaults() error {
	c.Config.Defaults()

	if c.Runner == nil {
		c.Runner = ExecRunner{}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Dialer == nil {
		c.Dialer = SSHDialer{Logger: c.Logger}
	}

	return nil
}

// NewPipelineRegistry returns the registry with every release pipeline step.
// Unknown steps run the pipeline script with their name as the step.
func NewPipelineRegistry(cfg PipelineConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := pipeline{cfg: cfg}

	reg, err := NewRegistry(p.scriptStep)
	if err != nil {
		return nil, err
	}

	defs := []Definition{
		{Name: model.StepAngular, Strategy: p.powershell(p.angularArgs)},
		{Name: model.StepIncrementals, Strategy: p.powershell(p.incrementalsArgs)},
		{Name: model.StepCommit, Strategy: p.powershell(p.commitArgs)},
		{Name: model.StepReport, Strategy: p.report()},
		{
			Name: model.StepZip,
			Strategy: Validated{
				Required: []string{"releaseVersion", "baseDir"},
				Message:  "Missing releaseVersion or baseDir",
				Next:     p.zip(),
			},
		},
		{
			Name: model.StepEmail,
			Strategy: Validated{
				Required: []string{"releaseVersion", "baseFolder"},
				Message:  "Missing releaseVersion or baseFolder",
				Next:     p.email(),
			},
		},
		{
			Name:     model.StepSecurity,
			Strategy: p.remote(
				p.scriptCommand(securityScript),
				p.reportFetch(cfg.Config.Remote.ReportsDir, "Sonar_OSCS_Malware_Reports"),
			),
		},
		{
			Name:     model.StepStaasSubmit,
			Sink:     staasSink,
			Mode:     logsink.ModeTruncate,
			Strategy: p.remote(p.scriptCommand(staasScript, "submit"), nil),
		},
		{
			Name:     model.StepStaasStatus,
			Sink:     staasSink,
			Mode:     logsink.ModeAppend,
			Strategy: p.remote(p.scriptCommand(staasScript, "status"), nil),
		},
		{
			Name:     model.StepStaasDownload,
			Sink:     staasSink,
			Mode:     logsink.ModeAppend,
			Strategy: p.remote(
				p.scriptCommand(staasScript, "download"),
				p.reportFetch(cfg.Config.Remote.StaasReportsDir, "STaaS_Reports"),
			),
		},
	}

	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("could not register step %q: %w", d.Name, err)
		}
	}

	return reg, nil
}

type pipeline struct {
	cfg PipelineConfig
}

func (p pipeline) root(elems ...string) string {
	return filepath.Join(append([]string{p.cfg.Config.ProjectRoot}, elems...)...)
}

func (p pipeline) jsonDir() string {
	return p.root("python", "release-report-generator", "json_files")
}

func (p pipeline) scriptStep(name string) Definition {
	return Definition{
		Name: name,
		Strategy: p.powershell(func(model.StepInput) []string {
			return p.scriptArgs(name)
		}),
	}
}

func (p pipeline) powershell(args func(model.StepInput) []string) LocalCommand {
	return LocalCommand{
		Path: p.cfg.Config.Local.PowerShell,
		Args: func(in model.StepInput) []string {
			return append([]string{"-ExecutionPolicy", "Bypass"}, args(in)...)
		},
		Dir:    p.cfg.Config.ProjectRoot,
		Runner: p.cfg.Runner,
	}
}

func (p pipeline) python(args func(model.StepInput) []string) LocalCommand {
	return LocalCommand{
		Path:   p.cfg.Config.Local.Python,
		Args:   args,
		Dir:    p.cfg.Config.ProjectRoot,
		Env:    []string{"PYTHONUNBUFFERED=1"},
		Runner: p.cfg.Runner,
	}
}

func (p pipeline) scriptArgs(step string) []string {
	return []string{"-File", p.cfg.Config.PipelineScriptPath(), "-Step", step}
}

func (p pipeline) angularArgs(in model.StepInput) []string {
	return append(p.scriptArgs(model.StepAngular),
		"-ReleaseVersion", in.Get("ReleaseVersion"),
		"-RemoteReleaseVersion", in.Get("RemoteReleaseVersion"),
		"-RemoteAppName", in.Get("RemoteAppName"),
		"-JenkinsUser", in.Get("JenkinsUser"),
		"-JenkinsToken", in.Get("JenkinsToken"),
	)
}

func (p pipeline) incrementalsArgs(in model.StepInput) []string {
	return append(p.scriptArgs(model.StepIncrementals),
		"-RepoPath", in.Get("RepoPath"),
		"-AppName", in.Get("AppName"),
		"-BaseVersion", in.Get("BaseVersion"),
		"-TargetVersion", in.Get("TargetVersion"),
		"-JiraRef", in.Get("JiraRef"),
	)
}

func (p pipeline) commitArgs(in model.StepInput) []string {
	return []string{
		"-File", p.root("powershell", "Generate-CommitSummary.ps1"),
		"-RepoPath", in.Get("repoPath"),
		"-BaseRelease", in.Get("baseRelease"),
		"-TargetRelease", in.Get("targetRelease"),
		"-OutputFolder", p.jsonDir(),
		"-JiraRef", in.Get("jiraRef"),
		"-AppName", in.Get("appName"),
	}
}

func reportValues(in model.StepInput) []string {
	return []string{
		in.Get("jsonFile"),
		in.Get("title"),
		in.Get("release"),
		in.Get("subtitle"),
		in.FirstOf("versionNumber", "version"),
		in.FirstOf("versionDate", "date"),
	}
}

// report passes the document values as arguments and as answers to the
// generator prompts.
func (p pipeline) report() LocalCommand {
	cmd := p.python(func(in model.StepInput) []string {
		return append([]string{p.root("python", "release-report-generator", "generate_release_doc.py")}, reportValues(in)...)
	})
	cmd.Stdin = func(in model.StepInput) string {
		return strings.Join(reportValues(in), "\n") + "\n"
	}
	return cmd
}

// zip writes the packaging settings the zip script loads from its working
// directory, the script takes no arguments.
func (p pipeline) zip() LocalCommand {
	cmd := p.python(func(model.StepInput) []string {
		return []string{p.root("python", "automate_release.py")}
	})
	cmd.Config = &ConfigFile{
		Path: releaseConfigFile,
		Entries: func(in model.StepInput) []ConfigEntry {
			return []ConfigEntry{
				{Key: "RELEASE_VERSION", Value: in.Get("releaseVersion")},
				{Key: "BASE_DIR", Value: in.Get("baseDir")},
				{Key: "PGP_PUBLIC_KEY", Value: in.Get("pgpKey")},
			}
		},
	}
	return cmd
}

// email writes the settings the email generator loads from its working directory.
func (p pipeline) email() LocalCommand {
	cmd := p.python(func(model.StepInput) []string {
		return []string{p.root("python", "generate_release_email.py")}
	})
	cmd.Config = &ConfigFile{
		Path: emailConfigFile,
		Entries: func(in model.StepInput) []ConfigEntry {
			return []ConfigEntry{
				{Key: "RELEASE_VERSION", Value: in.Get("releaseVersion")},
				{Key: "BASE_FOLDER", Value: in.Get("baseFolder")},
				{Key: "FO_BASE_PATH", Value: in.Get("foBasePath")},
				{Key: "SIGN_OFF_NAME", Value: in.Get("signOff")},
			}
		},
	}
	return cmd
}

func (p pipeline) remote(command func(model.StepInput) (string, error), fetch func(model.StepInput) (*RemoteFetch, error)) RemoteCommand {
	r := p.cfg.Config.Remote
	return RemoteCommand{
		Dialer:         p.cfg.Dialer,
		Host:           r.Host,
		Port:           r.Port,
		ConnectTimeout: r.ConnectTimeout,
		PrivateKey:     p.cfg.PrivateKey,
		Command:        command,
		Fetch:          fetch,
	}
}

// remoteApp returns the application and release a remote step works on.
func remoteApp(in model.StepInput) (app, release string, err error) {
	app, err = pathSegment("RemoteAppName", in.Get("RemoteAppName"))
	if err != nil {
		return "", "", err
	}
	release, err = pathSegment("RemoteReleaseVersion", in.Get("RemoteReleaseVersion"))
	if err != nil {
		return "", "", err
	}
	return app, release, nil
}

func (p pipeline) scriptCommand(script string, args ...string) func(model.StepInput) (string, error) {
	return func(in model.StepInput) (string, error) {
		app, release, err := remoteApp(in)
		if err != nil {
			return "", err
		}

		words := []string{shellQuote(path.Join(p.cfg.Config.Remote.ScriptsDir, script))}
		for _, a := range args {
			words = append(words, shellQuote(a))
		}
		words = append(words, shellQuote(app), shellQuote(release))

		return strings.Join(words, " "), nil
	}
}

func (p pipeline) reportFetch(remoteDir, localDir string) func(model.StepInput) (*RemoteFetch, error) {
	return func(in model.StepInput) (*RemoteFetch, error) {
		app, release, err := remoteApp(in)
		if err != nil {
			return nil, err
		}

		return &RemoteFetch{
			Remote:   path.Join(remoteDir, release, app),
			LocalDir: p.root("Report-output", localDir),
		}, nil
	}
}
