// Package guard implements the adversarial quality gate that reviews agent
// step output before it is accepted into a run.
//
// A review has two layers. L0 is a fast heuristic screen for filler text,
// stub markers, and claims of actions no tool call backs up. L1 sends the
// output to a reviewer model on a different provider than the one that
// produced it and asks for an adversarial score. L1 is best effort: when it
// errors or is skipped for discussion output, the L0 score stands alone.
//
// Scores run 0 (perfect) to 10 (unusable). Low scores pass cleanly, a
// middle band passes with a quality warning banner, and high scores or
// critical issue categories reject the output so the caller can retry the
// step with the issues as feedback.
package guard
